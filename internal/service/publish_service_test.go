package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLease struct {
	ok       bool
	err      error
	released int
	acquired int
}

func (l *stubLease) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	l.acquired++
	if l.err != nil || !l.ok {
		return nil, l.ok, l.err
	}
	return func() { l.released++ }, true, nil
}

// seedProblems три задачи: готовая к публикации, пустая и запланированная на будущее
func seedProblems(t *testing.T, f *fixture) (ready, empty, future *model.Problem) {
	t.Helper()
	teacher := f.teacher()
	past := f.clock.At.Add(-time.Minute)
	later := f.clock.At.Add(time.Hour)

	var err error
	ready, err = f.problems.CreateProblem(f.ctx, teacher, CreateProblemInput{Title: "Graphs", Content: "Dijkstra", ScheduledPublishAt: &past})
	require.NoError(t, err)
	empty, err = f.problems.CreateProblem(f.ctx, teacher, CreateProblemInput{Title: "Untitled", ScheduledPublishAt: &past})
	require.NoError(t, err)
	future, err = f.problems.CreateProblem(f.ctx, teacher, CreateProblemInput{Title: "Trees", Content: "LCA", ScheduledPublishAt: &later})
	require.NoError(t, err)
	return ready, empty, future
}

func TestSweepPublishesEachProblemOnce(t *testing.T) {
	f := newFixture(t)
	ready, empty, future := seedProblems(t, f)

	first, err := f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	assert.Equal(t, 2, first.ProcessedCount)
	require.Len(t, first.PublishedProblems, 1)
	assert.Equal(t, ready.ID, first.PublishedProblems[0].ID)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, empty.ID, first.Errors[0].ProblemID)

	second, err := f.publish.Run(f.ctx, model.System, TriggerManual)
	require.NoError(t, err)
	assert.Empty(t, second.PublishedProblems)
	assert.Equal(t, 1, second.ProcessedCount)

	assert.Equal(t, 1, f.store.AuditCount(ready.ID))
	assert.Zero(t, f.store.AuditCount(empty.ID))
	assert.Zero(t, f.store.AuditCount(future.ID))

	published := 0
	for _, event := range f.events.Events() {
		if e, ok := event.(queue.ProblemPublishedEvent); ok {
			assert.Equal(t, ready.ID, e.ProblemID)
			published++
		}
	}
	assert.Equal(t, 1, published)

	// запланированная задача публикуется, когда наступает её время
	f.clock.At = f.clock.At.Add(2 * time.Hour)
	third, err := f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	require.Len(t, third.PublishedProblems, 1)
	assert.Equal(t, future.ID, third.PublishedProblems[0].ID)
}

func TestConcurrentSweepsNeverDoublePublish(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	past := f.clock.At.Add(-time.Minute)

	var ids []int64
	for i := 0; i < 10; i++ {
		problem, err := f.problems.CreateProblem(f.ctx, teacher, CreateProblemInput{Title: "P", Content: "C", ScheduledPublishAt: &past})
		require.NoError(t, err)
		ids = append(ids, problem.ID)
	}

	const sweeps = 6
	results := make([]*SweepResult, sweeps)
	var wg sync.WaitGroup
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.publish.Run(f.ctx, model.System, TriggerSweep)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	total := 0
	for _, res := range results {
		require.NotNil(t, res)
		total += len(res.PublishedProblems)
	}
	assert.Equal(t, len(ids), total)
	for _, id := range ids {
		assert.Equal(t, 1, f.store.AuditCount(id))
	}
}

func TestSweepLease(t *testing.T) {
	f := newFixture(t)
	seedProblems(t, f)

	held := &stubLease{ok: false}
	f.publish = NewPublishService(f.store, f.clock, held, f.events, zap.NewNop())
	res, err := f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.ProcessedCount)

	broken := &stubLease{err: errors.New("redis down")}
	f.publish = NewPublishService(f.store, f.clock, broken, f.events, zap.NewNop())
	res, err = f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	assert.Len(t, res.PublishedProblems, 1)

	free := &stubLease{ok: true}
	f.publish = NewPublishService(f.store, f.clock, free, f.events, zap.NewNop())
	res, err = f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, free.released)
}

func TestManualPublishIgnoresHeldLease(t *testing.T) {
	f := newFixture(t)
	ready, _, _ := seedProblems(t, f)

	held := &stubLease{ok: false}
	f.publish = NewPublishService(f.store, f.clock, held, f.events, zap.NewNop())

	res, err := f.publish.Run(f.ctx, f.admin(), TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.Len(t, res.PublishedProblems, 1)
	assert.Equal(t, ready.ID, res.PublishedProblems[0].ID)
	assert.Zero(t, held.acquired)

	// Плановый прогон по-прежнему уступает держателю lease
	res, err = f.publish.Run(f.ctx, model.System, TriggerSweep)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, held.acquired)
}

func TestSweepRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.publish.Run(f.ctx, f.teacher(), TriggerManual)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	res, err := f.publish.Run(f.ctx, f.admin(), TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, res.ProcessedCount)
	assert.NotNil(t, res.PublishedProblems)
	assert.NotNil(t, res.Errors)
}
