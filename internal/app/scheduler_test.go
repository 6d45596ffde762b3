package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingSweeper struct {
	runs    atomic.Int32
	callers chan model.Caller
}

func (s *countingSweeper) Run(_ context.Context, caller model.Caller, trigger string) (*service.SweepResult, error) {
	s.runs.Add(1)
	select {
	case s.callers <- caller:
	default:
	}
	return &service.SweepResult{Trigger: trigger}, nil
}

func TestSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{callers: make(chan model.Caller, 1)}
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	select {
	case caller := <-sweeper.callers:
		assert.Equal(t, model.System, caller)
	case <-time.After(time.Second):
		t.Fatal("sweep did not run on start")
	}

	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	stopped := sweeper.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.runs.Load())
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{callers: make(chan model.Caller, 1)}
	s := NewScheduler(sweeper, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
