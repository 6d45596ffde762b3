package model

import (
	"fmt"
	"time"
)

type SessionPeriod string

const (
	PeriodAM SessionPeriod = "AM"
	PeriodPM SessionPeriod = "PM"
)

const (
	// SlotCapacity один студент на слот
	SlotCapacity = 1
	// MaxBreaksPerDay лимит перерывов учителя на день
	MaxBreaksPerDay = 8
	// DefaultIntervalMinutes шаг генерации слотов по умолчанию
	DefaultIntervalMinutes = 10
	// TimeLabelLayout формат метки времени слота
	TimeLabelLayout = "15:04"
	// DateLayout формат даты слота
	DateLayout = "2006-01-02"
)

// TimeSlot слот, уникальный по (дата, время, учитель)
type TimeSlot struct {
	ID                  int64         `json:"id"`
	SlotDate            time.Time     `json:"slot_date"` // полночь даты, зона не важна
	TimeLabel           string        `json:"time_label"`
	TeacherID           int64         `json:"teacher_id"`
	Period              SessionPeriod `json:"session_period"`
	MaxCapacity         int           `json:"max_capacity"`
	CurrentReservations int           `json:"current_reservations"`
	IsAvailable         bool          `json:"is_available"`
	CreatedAt           time.Time     `json:"created_at"`
}

// IsBreak слот снят с записи, но не занят
func (s *TimeSlot) IsBreak() bool {
	return !s.IsAvailable && s.CurrentReservations == 0
}

// IsFull на слот больше нельзя записаться
func (s *TimeSlot) IsFull() bool {
	return s.CurrentReservations >= s.MaxCapacity || !s.IsAvailable
}

// CivilTime собирает момент из даты и метки HH:MM в зоне loc
func CivilTime(date time.Time, label string, loc *time.Location) (time.Time, error) {
	tod, err := time.Parse(TimeLabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time label %q: %w", label, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

// DateOnly отбрасывает время суток, оставляя календарную дату в UTC
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
