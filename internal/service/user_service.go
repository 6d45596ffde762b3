package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"go.uber.org/zap"
)

// UserService чтение пользователей; учётные записи ведёт провайдер идентичности
type UserService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		logger: logger,
	}
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.Repos().Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("get user", "user %d not found", id)
	}
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.store.Repos().Users().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("get user", "no user linked to telegram %d", telegramID)
	}
	return user, nil
}

// CallerByTelegramID вызывающий для команд бота
func (s *UserService) CallerByTelegramID(ctx context.Context, telegramID int64) (model.Caller, error) {
	user, err := s.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return model.Caller{}, err
	}

	s.logger.Debug("Resolved bot caller",
		zap.Int64("telegram_id", telegramID),
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)

	return user.Caller(), nil
}
