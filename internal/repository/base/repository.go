package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX общий интерфейс пула и транзакции
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scanner строка результата (pgx.Row или pgx.Rows)
type Scanner interface {
	Scan(dest ...any) error
}

// Коды ошибок PostgreSQL, которые движок различает
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
)

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// MapError переводит ошибку хранилища в таксономию движка.
// Конфликты сериализации и таймауты можно повторять, нарушения ограничений нельзя.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != nil {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return apperr.Wrap(apperr.ErrTransient, op, err)
		case codeUniqueViolation, codeCheckViolation:
			return apperr.Wrap(apperr.ErrConflict, op, err)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.ErrNotFound, op, err)
		}
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return apperr.Wrap(apperr.ErrTransient, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
