package model

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID        int64             `json:"id"`
	StudentID int64             `json:"student_id"`
	SlotID    int64             `json:"slot_id"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"` // определяет позицию в очереди блока
	UpdatedAt time.Time         `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Slot *TimeSlot `json:"slot,omitempty"`
}

func (r *Reservation) IsActive() bool {
	return r.Status == ReservationActive
}
