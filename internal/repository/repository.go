package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/google/uuid"
)

// Методы Get* возвращают nil, nil когда строки нет.
// Методы *ForUpdate блокируют строку до конца транзакции.

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ListIDsByRole(ctx context.Context, role model.Role) ([]int64, error)
}

type SlotRepository interface {
	// CreateIfAbsent возвращает false, если слот с той же тройкой уже есть
	CreateIfAbsent(ctx context.Context, slot *model.TimeSlot) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.TimeSlot, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.TimeSlot, error)
	// LockTeacherDay блокирует все слоты учителя за день
	LockTeacherDay(ctx context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error)
	ListByTeacherDate(ctx context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error)
	SetAvailable(ctx context.Context, id int64, available bool) error
	// IncrementReservations закрывает слот при достижении вместимости
	IncrementReservations(ctx context.Context, id int64) (*model.TimeSlot, error)
	// DecrementReservations снова открывает слот
	DecrementReservations(ctx context.Context, id int64) (*model.TimeSlot, error)
	// BlockStartLabel самая ранняя метка времени в блоке (учитель, дата, период)
	BlockStartLabel(ctx context.Context, teacherID int64, date time.Time, period model.SessionPeriod) (string, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Reservation, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, status model.ReservationStatus) error
	// QueuePosition 1-based позиция среди активных бронирований блока по времени создания
	QueuePosition(ctx context.Context, reservation *model.Reservation, slot *model.TimeSlot) (int, error)
}

type TicketRepository interface {
	GetBalance(ctx context.Context, studentID int64) (int, error)
	GetBalanceForUpdate(ctx context.Context, studentID int64) (int, error)
	// AddClamped прибавляет quantity, не превышая ceiling; возвращает баланс до и после
	AddClamped(ctx context.Context, studentID int64, quantity, ceiling int) (before, after int, err error)
	// Consume списывает quantity; apperr.ErrInsufficientBalance если уйдёт в минус
	Consume(ctx context.Context, studentID int64, quantity int) (int, error)
	// Revert откатывает ранее применённое начисление, не опускаясь ниже нуля.
	// removed меньше quantity, если часть тикетов уже потрачена.
	Revert(ctx context.Context, studentID int64, quantity int) (removed, after int, err error)
	CreateGrant(ctx context.Context, grant *model.TicketGrant) error
	DeleteGrantsByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)
	ListGrants(ctx context.Context, studentID int64) ([]*model.TicketGrant, error)
}

type ProblemRepository interface {
	Create(ctx context.Context, problem *model.Problem) error
	GetByID(ctx context.Context, id int64) (*model.Problem, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Problem, error)
	// ListDue черновики, время публикации которых наступило; заполненные идут первыми
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Problem, error)
	// TransitionStatus меняет статус только если текущий равен from
	TransitionStatus(ctx context.Context, id int64, from, to model.ProblemStatus, at time.Time) (bool, error)
	InsertAudit(ctx context.Context, audit *model.ProblemAudit) error
	ListAudit(ctx context.Context, problemID int64) ([]*model.ProblemAudit, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Session, error)
	GetByReservation(ctx context.Context, reservationID int64) (*model.Session, error)
	// ListByStudentProblem занятия студента по задаче
	ListByStudentProblem(ctx context.Context, studentID, problemID int64) ([]*model.Session, error)
	UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) error
	// CountBlockingArchive занятия в статусах active и feedback_pending
	CountBlockingArchive(ctx context.Context, problemID int64) (int, error)
}

// Repos набор репозиториев, привязанных к одному соединению или транзакции
type Repos interface {
	Users() UserRepository
	Slots() SlotRepository
	Reservations() ReservationRepository
	Tickets() TicketRepository
	Problems() ProblemRepository
	Sessions() SessionRepository
}

// Store владеет границей транзакции
type Store interface {
	// WithTx выполняет fn в одной транзакции; fn может быть вызвана повторно
	// после конфликта сериализации, поэтому не должна иметь внешних эффектов.
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
	// Repos репозитории без транзакции, для чтения
	Repos() Repos
}
