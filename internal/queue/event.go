// Package queue публикует доменные события движка в RabbitMQ.
package queue

import "time"

// Имена очередей; совпадают с routing key в exchange по умолчанию
const (
	QueueReservationCreated   = "reservation.created"
	QueueReservationCancelled = "reservation.cancelled"
	QueueProblemPublished     = "problem.published"
	QueueTicketsGranted       = "tickets.granted"
)

// Event сообщение, которое знает свою очередь
type Event interface {
	Queue() string
}

// ReservationCreatedEvent публикуется после успешной записи на слот
type ReservationCreatedEvent struct {
	ReservationID int64     `json:"reservation_id"`
	StudentID     int64     `json:"student_id"`
	SlotID        int64     `json:"slot_id"`
	TeacherID     int64     `json:"teacher_id"`
	SlotDate      string    `json:"slot_date"`
	TimeLabel     string    `json:"time_label"`
	TicketsLeft   int       `json:"tickets_left"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ReservationCreatedEvent) Queue() string { return QueueReservationCreated }

// ReservationCancelledEvent публикуется после отмены бронирования
type ReservationCancelledEvent struct {
	ReservationID int64     `json:"reservation_id"`
	StudentID     int64     `json:"student_id"`
	SlotID        int64     `json:"slot_id"`
	CancelledBy   int64     `json:"cancelled_by"`
	Refunded      bool      `json:"refunded"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (ReservationCancelledEvent) Queue() string { return QueueReservationCancelled }

// ProblemPublishedEvent публикуется для каждой задачи, переведённой в published
type ProblemPublishedEvent struct {
	ProblemID   int64     `json:"problem_id"`
	Title       string    `json:"title"`
	Trigger     string    `json:"trigger"`
	PublishedAt time.Time `json:"published_at"`
}

func (ProblemPublishedEvent) Queue() string { return QueueProblemPublished }

// TicketsGrantedEvent итог выдачи тикетов
type TicketsGrantedEvent struct {
	BatchID   string    `json:"batch_id,omitempty"`
	GrantType string    `json:"grant_type"`
	GrantedBy int64     `json:"granted_by"`
	Students  int       `json:"students"`
	Quantity  int       `json:"quantity"`
	GrantedAt time.Time `json:"granted_at"`
}

func (TicketsGrantedEvent) Queue() string { return QueueTicketsGranted }
