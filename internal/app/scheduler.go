package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"go.uber.org/zap"
)

// Sweeper то, что планировщик запускает по таймеру
type Sweeper interface {
	Run(ctx context.Context, caller model.Caller, trigger string) (*service.SweepResult, error)
}

// Scheduler периодически запускает автопубликацию задач
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновую задачу
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))
	go s.runPublishSweep(ctx)
}

// Stop останавливает задачу и ждёт завершения текущего прогона
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	<-s.done
}

func (s *Scheduler) runPublishSweep(ctx context.Context) {
	defer close(s.done)

	// первый прогон сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Publish sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Publish sweep task cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	res, err := s.sweeper.Run(ctx, model.System, service.TriggerSweep)
	if err != nil {
		s.logger.Error("Publish sweep failed", zap.Error(err))
		return
	}
	if len(res.Errors) > 0 {
		s.logger.Warn("Publish sweep finished with errors",
			zap.Int("errors", len(res.Errors)),
			zap.Int("published", len(res.PublishedProblems)),
		)
	}
}
