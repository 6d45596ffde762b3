// Package memory реализует repository.Store в памяти.
//
// Транзакции выполняются строго по одной под общим мьютексом, а при ошибке
// состояние восстанавливается из снимка, так что поведение соответствует
// сериализуемой изоляции. Используется в тестах сервисов.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/google/uuid"
)

// Точки внедрения ошибок
const (
	OpAddTickets        = "tickets.add"
	OpConsumeTickets    = "tickets.consume"
	OpCreateReservation = "reservations.create"
	OpIncrementSlot     = "slots.increment"
	OpTransitionProblem = "problems.transition"
	OpDeleteGrants      = "tickets.delete_grants"
)

type faultKey struct {
	op  string
	key int64
}

type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[faultKey]error
	epoch  time.Time
}

func NewStore() *Store {
	return &Store{
		st:     newState(),
		faults: make(map[faultKey]error),
		epoch:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// InjectFailure заставляет операцию op с ключом key возвращать err.
// Ключ: ID студента для тикетов, ID слота для бронирования, ID задачи для задач, 0 для пакетов.
func (s *Store) InjectFailure(op string, key int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[faultKey{op: op, key: key}] = err
}

// ClearFailures снимает все внедрённые ошибки
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[faultKey]error)
}

func (s *Store) fault(op string, key int64) error {
	return s.faults[faultKey{op: op, key: key}]
}

// now логические часы: каждое обращение строго позже предыдущего
func (s *Store) now(st *state) time.Time {
	st.seq++
	return s.epoch.Add(time.Duration(st.seq) * time.Millisecond)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, repos{store: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Repos() repository.Repos {
	return repos{store: s, locking: true}
}

// do выполняет f над состоянием; вне транзакции берёт мьютекс сам
func (s *Store) do(locking bool, f func(st *state) error) error {
	if locking {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return f(s.st)
}

// Вспомогательные методы для подготовки данных в тестах

// AddUser добавляет пользователя и возвращает его ID
func (s *Store) AddUser(role model.Role, username string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextID++
	user := &model.User{ID: s.st.nextID, Username: username, FirstName: username, Role: role, CreatedAt: s.now(s.st)}
	s.st.users[user.ID] = user
	return user.ID
}

// LinkTelegram привязывает Telegram ID к пользователю
func (s *Store) LinkTelegram(userID, telegramID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.st.users[userID]; ok {
		user.TelegramID = &telegramID
	}
}

// SetBalance выставляет баланс напрямую, минуя учёт
func (s *Store) SetBalance(studentID int64, tickets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.balances[studentID] = tickets
}

// Balance текущий баланс студента
func (s *Store) Balance(studentID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.balances[studentID]
}

// GrantCount количество записей о выдаче
func (s *Store) GrantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.grants)
}

// Slot копия слота по ID
func (s *Store) Slot(id int64) (model.TimeSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.st.slots[id]
	if !ok {
		return model.TimeSlot{}, false
	}
	return *slot, true
}

// SlotCount количество слотов
func (s *Store) SlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.slots)
}

// ReservationCount количество бронирований со статусом status
func (s *Store) ReservationCount(status model.ReservationStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.st.reservations {
		if r.Status == status {
			n++
		}
	}
	return n
}

// AuditCount количество записей журнала задачи
func (s *Store) AuditCount(problemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.st.audit {
		if a.ProblemID == problemID {
			n++
		}
	}
	return n
}

type state struct {
	seq          int64
	nextID       int64
	users        map[int64]*model.User
	slots        map[int64]*model.TimeSlot
	reservations map[int64]*model.Reservation
	balances     map[int64]int
	grants       map[int64]*model.TicketGrant
	problems     map[int64]*model.Problem
	audit        []*model.ProblemAudit
	sessions     map[int64]*model.Session
}

func newState() *state {
	return &state{
		users:        make(map[int64]*model.User),
		slots:        make(map[int64]*model.TimeSlot),
		reservations: make(map[int64]*model.Reservation),
		balances:     make(map[int64]int),
		grants:       make(map[int64]*model.TicketGrant),
		problems:     make(map[int64]*model.Problem),
		sessions:     make(map[int64]*model.Session),
	}
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) clone() *state {
	c := &state{
		seq:          st.seq,
		nextID:       st.nextID,
		users:        cloneMap(st.users),
		slots:        cloneMap(st.slots),
		reservations: cloneMap(st.reservations),
		balances:     make(map[int64]int, len(st.balances)),
		grants:       cloneMap(st.grants),
		problems:     cloneMap(st.problems),
		sessions:     cloneMap(st.sessions),
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for _, a := range st.audit {
		cp := *a
		c.audit = append(c.audit, &cp)
	}
	return c
}

func cloneMap[T any](m map[int64]*T) map[int64]*T {
	c := make(map[int64]*T, len(m))
	for k, v := range m {
		cp := *v
		c[k] = &cp
	}
	return c
}

type repos struct {
	store   *Store
	locking bool
}

func (r repos) Users() repository.UserRepository               { return userRepo(r) }
func (r repos) Slots() repository.SlotRepository               { return slotRepo(r) }
func (r repos) Reservations() repository.ReservationRepository { return reservationRepo(r) }
func (r repos) Tickets() repository.TicketRepository           { return ticketRepo(r) }
func (r repos) Problems() repository.ProblemRepository         { return problemRepo(r) }
func (r repos) Sessions() repository.SessionRepository         { return sessionRepo(r) }

func sameDay(a, b time.Time) bool {
	return model.DateOnly(a).Equal(model.DateOnly(b))
}

func batchEqual(a *uuid.UUID, b uuid.UUID) bool {
	return a != nil && *a == b
}

func opError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
