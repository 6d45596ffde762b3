package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxTickets потолок баланса тикетов
const MaxTickets = 10

type GrantType string

const (
	GrantIndividual GrantType = "individual"
	GrantWeeklyBulk GrantType = "weekly_bulk"
	GrantRefund     GrantType = "refund"
)

type TicketBalance struct {
	StudentID      int64     `json:"student_id"`
	CurrentTickets int       `json:"current_tickets"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TicketGrant неизменяемая запись о выдаче тикетов
type TicketGrant struct {
	ID        int64      `json:"id"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"` // только для массовой выдачи
	StudentID int64      `json:"student_id"`
	Quantity  int        `json:"quantity"`
	GrantedBy int64      `json:"granted_by"`
	Type      GrantType  `json:"grant_type"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}

// ClampTickets ограничивает баланс диапазоном [0, MaxTickets]
func ClampTickets(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxTickets {
		return MaxTickets
	}
	return n
}
