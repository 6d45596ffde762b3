package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = []struct {
	kind   error
	status int
	code   string
}{
	{apperr.ErrValidation, http.StatusBadRequest, "validation"},
	{apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperr.ErrSlotFull, http.StatusConflict, "slot_full"},
	{apperr.ErrConflict, http.StatusConflict, "conflict"},
	{apperr.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{apperr.ErrQuotaExceeded, http.StatusUnprocessableEntity, "quota_exceeded"},
	{apperr.ErrTransient, http.StatusServiceUnavailable, "transient"},
	{apperr.ErrPartialFailure, http.StatusInternalServerError, "partial_failure"},
}

// statusOf HTTP-статус и код ошибки по её виду
func statusOf(err error) (int, string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, "validation"
	}
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status, ks.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, errorBody{Error: "http", Message: msg})
			return
		}

		status, code := statusOf(err)
		body := errorBody{Error: code, Message: err.Error()}

		switch {
		case status == http.StatusServiceUnavailable:
			c.Response().Header().Set("Retry-After", "1")
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			if code == "internal" {
				body.Message = "internal error"
			}
		}

		_ = c.JSON(status, body)
	}
}
