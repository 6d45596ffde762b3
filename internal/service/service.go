package service

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"go.uber.org/zap"
)

// EventPublisher получатель доменных событий
type EventPublisher interface {
	Publish(ctx context.Context, event queue.Event) error
}

// publishEvent отправляет событие после коммита; ошибка брокера только логируется
func publishEvent(ctx context.Context, events EventPublisher, logger *zap.Logger, event queue.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("queue", event.Queue()),
			zap.Error(err),
		)
	}
}

// ownsTeacherScope учитель работает только со своими слотами, админ со всеми
func ownsTeacherScope(caller model.Caller, teacherID int64) bool {
	return caller.Role == model.RoleAdmin || (caller.Role == model.RoleTeacher && caller.ID == teacherID)
}
