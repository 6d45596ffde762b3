package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid проверяет что роль известна
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID         int64     `json:"id"`
	TelegramID *int64    `json:"telegram_id"` // nil - аккаунт не привязан к боту
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Caller возвращает контекст вызывающего для проверки прав
func (u *User) Caller() Caller {
	return Caller{ID: u.ID, Role: u.Role}
}
