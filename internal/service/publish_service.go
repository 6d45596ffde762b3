package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"go.uber.org/zap"
)

const (
	// sweepBatchSize сколько задач разбирается за один прогон
	sweepBatchSize = 500
	sweepLeaseKey  = "mentor_queue:publish_sweep"
	sweepLeaseTTL  = time.Minute
)

// Lease распределённая блокировка прогона; корректность от неё не зависит
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type PublishedProblem struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type SweepError struct {
	ProblemID int64  `json:"problem_id"`
	Message   string `json:"message"`
}

type SweepResult struct {
	Trigger           string             `json:"trigger"`
	ProcessedCount    int                `json:"processed_count"`
	PublishedProblems []PublishedProblem `json:"published_problems"`
	Errors            []SweepError       `json:"errors"`
	Skipped           bool               `json:"skipped"` // прогон уже идёт в другом процессе
	ExecutionTimeMs   int64              `json:"execution_time_ms"`
}

type PublishService struct {
	store  repository.Store
	clock  clock.Clock
	lease  Lease
	events EventPublisher
	logger *zap.Logger
}

func NewPublishService(store repository.Store, clk clock.Clock, lease Lease, events EventPublisher, logger *zap.Logger) *PublishService {
	return &PublishService{
		store:  store,
		clock:  clk,
		lease:  lease,
		events: events,
		logger: logger,
	}
}

// Run публикует черновики, время публикации которых наступило.
// Переход выполняется условным UPDATE по статусу draft, поэтому параллельные
// прогоны не публикуют задачу дважды и не дублируют записи журнала.
// Lease нужна только плановому прогону: ручной запуск от администратора
// не пропускается, пока реплика держит блокировку.
func (s *PublishService) Run(ctx context.Context, caller model.Caller, trigger string) (*SweepResult, error) {
	if err := caller.Authorize(model.CapRunPublish); err != nil {
		return nil, err
	}

	started := time.Now()
	result := &SweepResult{
		Trigger:           trigger,
		PublishedProblems: []PublishedProblem{},
		Errors:            []SweepError{},
	}

	if s.lease != nil && trigger != TriggerManual {
		release, ok, err := s.lease.Acquire(ctx, sweepLeaseKey, sweepLeaseTTL)
		switch {
		case err != nil:
			s.logger.Warn("Sweep lease unavailable, running without it", zap.Error(err))
		case !ok:
			s.logger.Info("Publish sweep already running elsewhere", zap.String("trigger", trigger))
			result.Skipped = true
			result.ExecutionTimeMs = time.Since(started).Milliseconds()
			return result, nil
		default:
			defer release()
		}
	}

	now := s.clock.Now()
	due, err := s.store.Repos().Problems().ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due problems: %w", err)
	}

	for _, problem := range due {
		result.ProcessedCount++

		if !problem.HasContent() {
			result.Errors = append(result.Errors, SweepError{
				ProblemID: problem.ID,
				Message:   "title and content are required",
			})
			continue
		}

		published, err := s.publishOne(ctx, caller, problem.ID, trigger, now)
		if err != nil {
			s.logger.Error("Failed to publish problem",
				zap.Int64("problem_id", problem.ID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, SweepError{ProblemID: problem.ID, Message: err.Error()})
			continue
		}
		if !published {
			continue
		}

		result.PublishedProblems = append(result.PublishedProblems, PublishedProblem{ID: problem.ID, Title: problem.Title})
		publishEvent(ctx, s.events, s.logger, queue.ProblemPublishedEvent{
			ProblemID:   problem.ID,
			Title:       problem.Title,
			Trigger:     trigger,
			PublishedAt: now,
		})
	}

	result.ExecutionTimeMs = time.Since(started).Milliseconds()

	s.logger.Info("Publish sweep completed",
		zap.String("trigger", trigger),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("published", len(result.PublishedProblems)),
		zap.Int("errors", len(result.Errors)),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
	)

	return result, nil
}

// publishOne возвращает false, если задачу уже опубликовал кто-то другой
func (s *PublishService) publishOne(ctx context.Context, caller model.Caller, problemID int64, trigger string, now time.Time) (bool, error) {
	published := false

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		published = false

		ok, err := repos.Problems().TransitionStatus(ctx, problemID, model.ProblemDraft, model.ProblemPublished, now)
		if err != nil {
			return fmt.Errorf("publish problem: %w", err)
		}
		if !ok {
			return nil
		}

		audit := &model.ProblemAudit{
			ProblemID:  problemID,
			FromStatus: model.ProblemDraft,
			ToStatus:   model.ProblemPublished,
			Trigger:    trigger,
			ActorID:    caller.ID,
		}
		if err := repos.Problems().InsertAudit(ctx, audit); err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}

		published = true
		return nil
	})

	return published, err
}
