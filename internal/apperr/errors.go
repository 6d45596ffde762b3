// Package apperr содержит таксономию ошибок движка бронирования.
//
// Каждая ошибка несёт вид (Kind), который проверяется через errors.Is,
// и, при необходимости, исходную ошибку хранилища. Вызывающий код по виду
// решает, имеет ли смысл повторять запрос (см. Retryable).
package apperr

import (
	"errors"
	"fmt"
)

// Виды ошибок
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrSlotFull            = errors.New("slot full")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrPartialFailure      = errors.New("partial failure")
	ErrForbidden           = errors.New("forbidden")
	ErrTransient           = errors.New("transient store error")
)

// Error ошибка движка с видом, операцией и причиной
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap отдаёт и вид, и причину, чтобы errors.Is работал для обоих
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New создаёт ошибку заданного вида
func New(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину в ошибку заданного вида
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(ErrValidation, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return New(ErrNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return New(ErrConflict, op, format, args...)
}

func Forbidden(op, format string, args ...any) *Error {
	return New(ErrForbidden, op, format, args...)
}

// Retryable сообщает, безопасно ли повторить операцию целиком
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// KindOf возвращает вид ошибки или nil, если ошибка не из таксономии
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrConflict,
		ErrSlotFull,
		ErrInsufficientBalance,
		ErrQuotaExceeded,
		ErrPartialFailure,
		ErrForbidden,
		ErrTransient,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
