package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/Freeeeeet/mentor_queue/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errStoreDown = errors.New("store unavailable")

func TestGrantIndividualClampsAtCeiling(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	student := f.student()

	balance, err := f.tickets.GrantIndividual(f.ctx, teacher, student.ID, 7, "homework")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	balance, err = f.tickets.GrantIndividual(f.ctx, teacher, student.ID, 7, "homework")
	require.NoError(t, err)
	assert.Equal(t, model.MaxTickets, balance)
	assert.Equal(t, model.MaxTickets, f.store.Balance(student.ID))
	assert.Equal(t, 2, f.store.GrantCount())

	grants, err := f.tickets.Grants(f.ctx, student, student.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, model.GrantIndividual, grants[0].Type)
	assert.Equal(t, teacher.ID, grants[0].GrantedBy)
	assert.Nil(t, grants[0].BatchID)
}

func TestGrantIndividualRemovesRecordWhenBalanceFails(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	student := f.studentWithTickets(3)
	f.store.InjectFailure(memory.OpAddTickets, student.ID, errStoreDown)

	_, err := f.tickets.GrantIndividual(f.ctx, teacher, student.ID, 2, "bonus")
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)

	assert.Zero(t, f.store.GrantCount())
	assert.Equal(t, 3, f.store.Balance(student.ID))
	assert.Empty(t, f.events.Events())
}

func TestGrantIndividualValidation(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	student := f.student()

	_, err := f.tickets.GrantIndividual(f.ctx, teacher, student.ID, 0, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.tickets.GrantIndividual(f.ctx, teacher, teacher.ID, 1, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.tickets.GrantIndividual(f.ctx, teacher, 4242, 1, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.tickets.GrantIndividual(f.ctx, student, student.ID, 1, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Zero(t, f.store.GrantCount())
}

func TestGrantBulkGrantsEveryStudent(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	teacher := f.teacher()

	var students []model.Caller
	for i := 0; i < 6; i++ {
		students = append(students, f.studentWithTickets(i*2))
	}

	res, err := f.tickets.GrantBulk(f.ctx, admin, 3, "weekly")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 6, f.store.GrantCount())

	for i, student := range students {
		assert.Equal(t, model.ClampTickets(i*2+3), f.store.Balance(student.ID))
	}
	assert.Zero(t, f.store.Balance(teacher.ID))

	events := f.events.Events()
	require.Len(t, events, 1)
	granted := events[0].(queue.TicketsGrantedEvent)
	assert.Equal(t, res.BatchID.String(), granted.BatchID)
	assert.Equal(t, 6, granted.Students)
}

func TestGrantBulkRollsBackWholeBatch(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	f.tickets.SetConcurrency(2)

	initial := []int{0, 4, 9, 10, 2}
	var students []model.Caller
	for _, n := range initial {
		students = append(students, f.studentWithTickets(n))
	}
	f.store.InjectFailure(memory.OpAddTickets, students[3].ID, errStoreDown)

	res, err := f.tickets.GrantBulk(f.ctx, admin, 3, "weekly")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPartialFailure)

	require.NotNil(t, res)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 4, res.Succeeded)
	assert.True(t, res.RolledBack)
	assert.Empty(t, res.CompensationErrors)

	assert.Zero(t, f.store.GrantCount())
	for i, student := range students {
		assert.Equal(t, initial[i], f.store.Balance(student.ID), "student %d", student.ID)
	}
	assert.Empty(t, f.events.Events())
}

func TestGrantBulkReportsFailedCompensation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	admin := f.admin()

	first := f.studentWithTickets(1)
	second := f.studentWithTickets(1)
	f.store.InjectFailure(memory.OpAddTickets, second.ID, errStoreDown)
	f.store.InjectFailure(memory.OpDeleteGrants, 0, errStoreDown)

	res, err := f.tickets.GrantBulk(f.ctx, admin, 2, "weekly")
	assert.ErrorIs(t, err, apperr.ErrPartialFailure)
	assert.False(t, res.RolledBack)
	require.Len(t, res.CompensationErrors, 1)

	// баланс всё равно откатан, осталась только запись о выдаче
	assert.Equal(t, 1, f.store.Balance(first.ID))
	assert.Equal(t, 1, f.store.GrantCount())

	failures := logs.FilterMessage("Failed to delete grant records of batch").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Equal(t, res.BatchID.String(), failures[0].ContextMap()["batch_id"])
}

// hookStore вызывает before перед транзакцией с номером at (с единицы)
type hookStore struct {
	repository.Store
	at     int32
	calls  atomic.Int32
	before func()
}

func (s *hookStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	if s.calls.Add(1) == s.at {
		s.before()
	}
	return s.Store.WithTx(ctx, fn)
}

func TestGrantBulkReportsTicketsSpentBeforeRollback(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	admin := f.admin()
	slots := f.morning(t, f.teacher())

	spender := f.studentWithTickets(0)
	broken := f.studentWithTickets(0)
	f.store.InjectFailure(memory.OpAddTickets, broken.ID, errStoreDown)

	// две транзакции выдачи, третья удаляет записи пакета
	hooked := &hookStore{Store: f.store, at: 3, before: func() {
		f.book(t, spender, slots[0].ID)
	}}
	tickets := NewTicketService(hooked, f.clock, f.events, zap.New(core))

	res, err := tickets.GrantBulk(f.ctx, admin, 1, "weekly")
	require.ErrorIs(t, err, apperr.ErrPartialFailure)
	assert.Contains(t, err.Error(), "rolled back incompletely")

	assert.False(t, res.RolledBack)
	require.Len(t, res.CompensationErrors, 1)
	assert.Contains(t, res.CompensationErrors[0], "removed 0 of 1")

	assert.Zero(t, f.store.GrantCount())
	assert.Equal(t, 0, f.store.Balance(spender.ID))
	assert.Equal(t, 1, f.store.ReservationCount(model.ReservationActive))

	partial := logs.FilterMessage("Ticket grant reverted only partially").All()
	require.Len(t, partial, 1)
	assert.Equal(t, zapcore.ErrorLevel, partial[0].Level)
	assert.Equal(t, spender.ID, partial[0].ContextMap()["student_id"])
	assert.Equal(t, res.BatchID.String(), partial[0].ContextMap()["batch_id"])
}

func TestGrantBulkAuthorization(t *testing.T) {
	f := newFixture(t)
	f.student()

	_, err := f.tickets.GrantBulk(f.ctx, f.teacher(), 1, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.tickets.GrantBulk(f.ctx, f.admin(), -1, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBalanceVisibility(t *testing.T) {
	f := newFixture(t)
	owner := f.studentWithTickets(4)
	other := f.student()

	balance, err := f.tickets.Balance(f.ctx, owner, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	_, err = f.tickets.Balance(f.ctx, other, owner.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	balance, err = f.tickets.Balance(f.ctx, f.teacher(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	balance, err = f.tickets.Balance(f.ctx, other, other.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}
