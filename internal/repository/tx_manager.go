package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultTxRetries = 3
	txRetryBase      = 25 * time.Millisecond
)

// PostgresStore хранилище поверх пула pgx
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxRetries uint64
	logger     *zap.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:       pool,
		maxRetries: defaultTxRetries,
		logger:     logger,
	}
}

func (s *PostgresStore) Repos() Repos {
	return pgRepos{db: s.pool}
}

// WithTx повторяет транзакцию при конфликтах сериализации и дедлоках
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(txRetryBase))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.runTx(ctx, fn)
		if apperr.Retryable(err) {
			s.logger.Warn("Transaction conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return base.MapError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, pgRepos{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return base.MapError("commit transaction", err)
	}
	return nil
}

type pgRepos struct {
	db base.DBTX
}

func (r pgRepos) Users() UserRepository               { return NewUserRepository(r.db) }
func (r pgRepos) Slots() SlotRepository               { return NewSlotRepository(r.db) }
func (r pgRepos) Reservations() ReservationRepository { return NewReservationRepository(r.db) }
func (r pgRepos) Tickets() TicketRepository           { return NewTicketRepository(r.db) }
func (r pgRepos) Problems() ProblemRepository         { return NewProblemRepository(r.db) }
func (r pgRepos) Sessions() SessionRepository         { return NewSessionRepository(r.db) }
