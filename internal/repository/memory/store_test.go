package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlot(teacherID int64, label string) *model.TimeSlot {
	return &model.TimeSlot{
		SlotDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TimeLabel:   label,
		TeacherID:   teacherID,
		Period:      model.PeriodAM,
		MaxCapacity: model.SlotCapacity,
		IsAvailable: true,
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	student := store.AddUser(model.RoleStudent, "kim")
	store.SetBalance(student, 5)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if _, err := repos.Tickets().Consume(ctx, student, 2); err != nil {
			return err
		}
		if _, err := repos.Slots().CreateIfAbsent(ctx, newSlot(1, "09:00")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, store.Balance(student))
	assert.Equal(t, 0, store.SlotCount())

	err = store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		_, err := repos.Tickets().Consume(ctx, student, 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Balance(student))
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().WithTx(ctx, func(context.Context, repository.Repos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestInjectFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	student := store.AddUser(model.RoleStudent, "lee")
	store.SetBalance(student, 1)

	store.InjectFailure(OpConsumeTickets, student, apperr.ErrTransient)
	_, err := store.Repos().Tickets().Consume(ctx, student, 1)
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.Equal(t, 1, store.Balance(student))

	store.ClearFailures()
	after, err := store.Repos().Tickets().Consume(ctx, student, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, after)

	_, err = store.Repos().Tickets().Consume(ctx, student, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	slots := store.Repos().Slots()

	first := newSlot(7, "09:00")
	created, err := slots.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	created, err = slots.CreateIfAbsent(ctx, newSlot(7, "09:00"))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = slots.CreateIfAbsent(ctx, newSlot(8, "09:00"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, store.SlotCount())
}

func TestAddClampedStopsAtCeiling(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	student := store.AddUser(model.RoleStudent, "park")
	store.SetBalance(student, 8)

	before, after, err := store.Repos().Tickets().AddClamped(ctx, student, 5, model.MaxTickets)
	require.NoError(t, err)
	assert.Equal(t, 8, before)
	assert.Equal(t, model.MaxTickets, after)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	problems := store.Repos().Problems()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	problem := &model.Problem{Title: "Trees", Content: "DFS", Status: model.ProblemDraft, ScheduledPublishAt: &at}
	require.NoError(t, problems.Create(ctx, problem))

	due, err := problems.ListDue(ctx, at, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	changed, err := problems.TransitionStatus(ctx, problem.ID, model.ProblemDraft, model.ProblemPublished, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = problems.TransitionStatus(ctx, problem.ID, model.ProblemDraft, model.ProblemPublished, at)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := problems.GetByID(ctx, problem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProblemPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, at, *got.PublishedAt)

	due, err = problems.ListDue(ctx, at.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestListDuePutsEmptyDraftsLast(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	problems := store.Repos().Problems()
	early := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	blank := &model.Problem{Title: "  ", Status: model.ProblemDraft, ScheduledPublishAt: &early}
	require.NoError(t, problems.Create(ctx, blank))
	ready := &model.Problem{Title: "Heaps", Content: "k-th smallest", Status: model.ProblemDraft, ScheduledPublishAt: &late}
	require.NoError(t, problems.Create(ctx, ready))

	due, err := problems.ListDue(ctx, late, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ready.ID, due[0].ID)

	due, err = problems.ListDue(ctx, late, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, []int64{ready.ID, blank.ID}, []int64{due[0].ID, due[1].ID})
}
