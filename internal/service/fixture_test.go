package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var kst = time.FixedZone("KST", 9*60*60)

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	clock  *clock.Fixed
	events *queue.Recorder

	slots        *SlotService
	tickets      *TicketService
	reservations *ReservationService
	problems     *ProblemService
	publish      *PublishService
	users        *UserService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogger(t, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()

	store := memory.NewStore()
	clk := &clock.Fixed{At: time.Date(2024, 2, 28, 12, 0, 0, 0, kst)}
	events := &queue.Recorder{}

	return &fixture{
		ctx:          context.Background(),
		store:        store,
		clock:        clk,
		events:       events,
		slots:        NewSlotService(store, logger),
		tickets:      NewTicketService(store, clk, events, logger),
		reservations: NewReservationService(store, clk, events, logger),
		problems:     NewProblemService(store, clk, events, logger),
		publish:      NewPublishService(store, clk, nil, events, logger),
		users:        NewUserService(store, logger),
	}
}

func (f *fixture) user(role model.Role, name string) model.Caller {
	return model.Caller{ID: f.store.AddUser(role, name), Role: role}
}

func (f *fixture) teacher() model.Caller { return f.user(model.RoleTeacher, "teacher") }
func (f *fixture) student() model.Caller { return f.user(model.RoleStudent, "student") }
func (f *fixture) admin() model.Caller   { return f.user(model.RoleAdmin, "admin") }

// studentWithTickets студент с заданным балансом
func (f *fixture) studentWithTickets(tickets int) model.Caller {
	student := f.student()
	f.store.SetBalance(student.ID, tickets)
	return student
}

var march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// morning разворачивает слоты 09:00, 09:10, 09:20 на 1 марта
func (f *fixture) morning(t *testing.T, teacher model.Caller) []*model.TimeSlot {
	t.Helper()
	res, err := f.slots.Expand(f.ctx, teacher, ExpandRequest{
		Date:      march1,
		TeacherID: teacher.ID,
		AMStart:   "09:00",
		AMEnd:     "09:30",
		Session:   SessionAM,
	})
	require.NoError(t, err)
	require.Len(t, res.Created, 3)
	return res.Created
}

func (f *fixture) book(t *testing.T, student model.Caller, slotID int64) *model.Reservation {
	t.Helper()
	reservation, err := f.reservations.Book(f.ctx, student, slotID)
	require.NoError(t, err)
	return reservation
}
