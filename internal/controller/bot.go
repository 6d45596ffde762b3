package controller

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/controller/handlers"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, cmdHandlers *handlers.Handlers, logger *zap.Logger) *BotController {
	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	exact := []struct {
		command string
		handler bot.HandlerFunc
	}{
		{"/start", c.handlers.HandleStart},
		{"/help", c.handlers.HandleHelp},
		{"/balance", c.handlers.HandleBalance},
		{"/mybookings", c.handlers.HandleMyBookings},
		{"/publish", c.handlers.HandlePublish},
	}
	for _, cmd := range exact {
		c.bot.RegisterHandler(bot.HandlerTypeMessageText, cmd.command, bot.MatchTypeExact, cmd.handler)
	}

	// команды с аргументами
	withArgs := []struct {
		command string
		handler bot.HandlerFunc
	}{
		{"/slots", c.handlers.HandleSlots},
		{"/book", c.handlers.HandleBook},
		{"/cancelbooking", c.handlers.HandleCancelBooking},
		{"/when", c.handlers.HandleWhen},
		{"/break", c.handlers.HandleBreak},
		{"/grantweekly", c.handlers.HandleGrantWeekly},
	}
	for _, cmd := range withArgs {
		c.bot.RegisterHandler(bot.HandlerTypeMessageText, cmd.command, bot.MatchTypePrefix, cmd.handler)
	}

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "balance", Description: "🎟 Мои тикеты"},
		{Command: "mybookings", Description: "📅 Мои записи"},
		{Command: "slots", Description: "🗓 Слоты учителя на день"},
		{Command: "book", Description: "✍️ Записаться на слот"},
		{Command: "cancelbooking", Description: "❌ Отменить запись"},
		{Command: "when", Description: "🕐 Моё время и доступ к задаче"},
		{Command: "break", Description: "☕️ Перерыв в слоте (учитель)"},
		{Command: "grantweekly", Description: "🎁 Выдать тикеты всем (админ)"},
		{Command: "publish", Description: "📢 Опубликовать задачи (админ)"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает бота и блокируется до отмены контекста
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot")
	c.bot.Start(ctx)
}
