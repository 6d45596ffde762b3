package model

import "time"

type SessionStatus string

const (
	SessionScheduled       SessionStatus = "scheduled"
	SessionActive          SessionStatus = "active"
	SessionFeedbackPending SessionStatus = "feedback_pending"
	SessionCompleted       SessionStatus = "completed"
	SessionCancelled       SessionStatus = "cancelled"
)

// Session занятие по бронированию с назначенной задачей
type Session struct {
	ID            int64         `json:"id"`
	ReservationID int64         `json:"reservation_id"`
	ProblemID     int64         `json:"problem_id"`
	StudentID     int64         `json:"student_id"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BlocksArchive занятие мешает архивировать задачу
func (s SessionStatus) BlocksArchive() bool {
	return s == SessionActive || s == SessionFeedbackPending
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:       {SessionActive, SessionCancelled},
	SessionActive:          {SessionFeedbackPending, SessionCompleted, SessionCancelled},
	SessionFeedbackPending: {SessionCompleted},
}

// CanMoveTo допустим ли переход статуса занятия
func (s SessionStatus) CanMoveTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
