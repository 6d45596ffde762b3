package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// replyFunc формирует ответ на команду; args это слова после команды
type replyFunc func(ctx context.Context, caller model.Caller, args []string) (string, error)

// respond находит вызывающего по Telegram ID, считает ответ и отправляет его
func (h *Handlers) respond(ctx context.Context, b *bot.Bot, update *models.Update, reply replyFunc) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID

	caller, err := h.userService.CallerByTelegramID(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Error("Failed to resolve caller", zap.Int64("telegram_id", telegramID), zap.Error(err))
		}
		h.sendError(ctx, b, chatID, ErrorMessage(err))
		return
	}

	text, err := reply(ctx, caller, commandArgs(update.Message.Text))
	if err != nil {
		h.logger.Warn("Command failed",
			zap.Int64("telegram_id", telegramID),
			zap.String("command", update.Message.Text),
			zap.Error(err),
		)
		h.sendError(ctx, b, chatID, ErrorMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, text)
}

// commandArgs отбрасывает саму команду
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return "❌ Неверный формат команды. Смотрите /help"
	case errors.Is(err, apperr.ErrForbidden):
		return "❌ Эта команда вам недоступна"
	case errors.Is(err, apperr.ErrNotFound):
		return "❌ Не найдено. Если аккаунт не привязан к боту, обратитесь к администратору"
	case errors.Is(err, apperr.ErrSlotFull):
		return "❌ Слот уже занят"
	case errors.Is(err, apperr.ErrInsufficientBalance):
		return "❌ Недостаточно тикетов"
	case errors.Is(err, apperr.ErrQuotaExceeded):
		return "❌ Превышен лимит перерывов на день"
	case errors.Is(err, apperr.ErrConflict):
		return "❌ Операция конфликтует с текущим состоянием"
	case errors.Is(err, apperr.ErrPartialFailure):
		return "❌ Операция не выполнена для части студентов и была отменена"
	case errors.Is(err, apperr.ErrTransient):
		return "⏳ Сервис перегружен, попробуйте ещё раз"
	default:
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
