package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/service"
)

// FormatSlot одна строка со статусом слота
func FormatSlot(slot *model.TimeSlot) string {
	switch {
	case slot.IsBreak():
		return fmt.Sprintf("☕️ %s перерыв", slot.TimeLabel)
	case slot.IsFull():
		return fmt.Sprintf("🔴 %s занят", slot.TimeLabel)
	default:
		return fmt.Sprintf("🟢 %s свободен (слот #%d)", slot.TimeLabel, slot.ID)
	}
}

// FormatReservation форматирует бронирование для отображения
func FormatReservation(reservation *model.Reservation) string {
	emoji, status := "✅", "активна"
	if !reservation.IsActive() {
		emoji, status = "❌", "отменена"
	}

	when := "слот удалён"
	if reservation.Slot != nil {
		when = fmt.Sprintf("%s %s", reservation.Slot.SlotDate.Format("02.01.2006"), reservation.Slot.TimeLabel)
	}

	return fmt.Sprintf("%s #%d: %s, %s", emoji, reservation.ID, when, status)
}

// FormatVisibility время в очереди и видимость задачи
func FormatVisibility(view *service.Visibility, loc *time.Location) string {
	s := view.Schedule

	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 Ваше место в очереди: %d (блок с %s)\n", view.QueuePosition, view.BlockStart)
	fmt.Fprintf(&sb, "🕐 Начало: %s\n", s.ScheduledStartAt.In(loc).Format("02.01.2006 15:04"))

	switch {
	case s.IsLive:
		sb.WriteString("🟢 Занятие уже идёт")
	case s.CanShowProblem:
		fmt.Fprintf(&sb, "📖 Задача открыта, до начала %s", formatDuration(s.TimeUntilStart))
	default:
		fmt.Fprintf(&sb, "🔒 Задача откроется %s (через %s)",
			s.VisibleFrom.In(loc).Format("02.01.2006 15:04"),
			formatDuration(s.TimeUntilVisible),
		)
	}

	if view.Problem != nil {
		fmt.Fprintf(&sb, "\n\n📝 %s\n%s", view.Problem.Title, view.Problem.Content)
	}
	return sb.String()
}

// FormatSweep итог прогона автопубликации
func FormatSweep(res *service.SweepResult) string {
	if res.Skipped {
		return "⏳ Публикация уже выполняется"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📢 Проверено задач: %d, опубликовано: %d", res.ProcessedCount, len(res.PublishedProblems))
	for _, p := range res.PublishedProblems {
		fmt.Fprintf(&sb, "\n✅ #%d %s", p.ID, p.Title)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(&sb, "\n❌ #%d %s", e.ProblemID, e.Message)
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Round(time.Minute).Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}
