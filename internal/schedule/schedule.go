// Package schedule вычисляет время старта и предпросмотра задачи по позиции в очереди блока.
//
// Функции пакета чистые: текущее время передаётся явно, результат не кешируется
// и пересчитывается на каждый запрос.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// QueueStep интервал между соседними позициями очереди
const QueueStep = 10 * time.Minute

// ErrInvalidArgument неверная позиция в очереди или отрицательный предпросмотр
var ErrInvalidArgument = errors.New("invalid argument")

// Computation расписание одной позиции в очереди
type Computation struct {
	BlockStart       time.Time
	QueuePosition    int
	PreviewLead      time.Duration
	ScheduledStartAt time.Time
	VisibleFrom      time.Time
}

// View состояние видимости на момент now
type View struct {
	ScheduledStartAt time.Time     `json:"scheduled_start_at"`
	VisibleFrom      time.Time     `json:"visible_from"`
	CanShowProblem   bool          `json:"can_show_problem"`
	IsLive           bool          `json:"is_live"`
	TimeUntilVisible time.Duration `json:"time_until_visible"`
	TimeUntilStart   time.Duration `json:"time_until_start"`
}

// Compute считает старт как blockStart + (position-1)*QueueStep
// и начало видимости как старт минус previewLead.
func Compute(blockStart time.Time, queuePosition int, previewLead time.Duration) (Computation, error) {
	if queuePosition < 1 {
		return Computation{}, fmt.Errorf("queue position %d: %w", queuePosition, ErrInvalidArgument)
	}
	if previewLead < 0 {
		return Computation{}, fmt.Errorf("preview lead %s: %w", previewLead, ErrInvalidArgument)
	}

	start := blockStart.Add(time.Duration(queuePosition-1) * QueueStep)
	return Computation{
		BlockStart:       blockStart,
		QueuePosition:    queuePosition,
		PreviewLead:      previewLead,
		ScheduledStartAt: start,
		VisibleFrom:      start.Add(-previewLead),
	}, nil
}

// CanShowProblem задача видна начиная с VisibleFrom включительно
func (c Computation) CanShowProblem(now time.Time) bool {
	return !now.Before(c.VisibleFrom)
}

// IsLive занятие уже началось
func (c Computation) IsLive(now time.Time) bool {
	return !now.Before(c.ScheduledStartAt)
}

// At возвращает состояние на момент now, приведённый к зоне blockStart
func (c Computation) At(now time.Time) View {
	now = now.In(c.BlockStart.Location())
	return View{
		ScheduledStartAt: c.ScheduledStartAt,
		VisibleFrom:      c.VisibleFrom,
		CanShowProblem:   c.CanShowProblem(now),
		IsLive:           c.IsLive(now),
		TimeUntilVisible: nonNegative(c.VisibleFrom.Sub(now)),
		TimeUntilStart:   nonNegative(c.ScheduledStartAt.Sub(now)),
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
