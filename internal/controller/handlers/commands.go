package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = "📚 Справка по командам:\n\n" +
	"Для студентов:\n" +
	"/balance - Мои тикеты\n" +
	"/mybookings - Мои записи\n" +
	"/slots <id учителя> <ГГГГ-ММ-ДД> - Слоты учителя на день\n" +
	"/book <id слота> - Записаться\n" +
	"/cancelbooking <id записи> - Отменить запись\n" +
	"/when <id записи> - Когда моя очередь и когда откроется задача\n\n" +
	"Для учителей:\n" +
	"/break <ГГГГ-ММ-ДД> <ЧЧ:ММ> on|off [id преподавателя] - Перерыв в слоте\n\n" +
	"Для администраторов:\n" +
	"/grantweekly <N> - Выдать всем студентам по N тикетов\n" +
	"/publish - Опубликовать задачи, время которых наступило"

var roleNames = map[model.Role]string{
	model.RoleStudent: "студент",
	model.RoleTeacher: "учитель",
	model.RoleAdmin:   "администратор",
}

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.startText)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

func (h *Handlers) HandleBalance(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.balanceText)
}

func (h *Handlers) HandleMyBookings(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.bookingsText)
}

func (h *Handlers) HandleSlots(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.slotsText)
}

func (h *Handlers) HandleBook(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.bookText)
}

func (h *Handlers) HandleCancelBooking(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.cancelText)
}

func (h *Handlers) HandleWhen(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.whenText)
}

func (h *Handlers) HandleBreak(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.breakText)
}

func (h *Handlers) HandleGrantWeekly(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.grantWeeklyText)
}

func (h *Handlers) HandlePublish(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.respond(ctx, b, update, h.publishText)
}

func (h *Handlers) startText(_ context.Context, caller model.Caller, _ []string) (string, error) {
	return fmt.Sprintf("👋 Привет! Вы вошли как %s.\n\n%s", roleNames[caller.Role], helpText), nil
}

func (h *Handlers) balanceText(ctx context.Context, caller model.Caller, _ []string) (string, error) {
	balance, err := h.ticketService.Balance(ctx, caller, caller.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🎟 У вас %d из %d тикетов", balance, model.MaxTickets), nil
}

func (h *Handlers) bookingsText(ctx context.Context, caller model.Caller, _ []string) (string, error) {
	reservations, err := h.reservationService.ListMine(ctx, caller, caller.ID)
	if err != nil {
		return "", err
	}
	if len(reservations) == 0 {
		return "📭 У вас пока нет записей", nil
	}

	var sb strings.Builder
	sb.WriteString("📅 Ваши записи:\n")
	for _, reservation := range reservations {
		sb.WriteString("\n")
		sb.WriteString(FormatReservation(reservation))
	}
	return sb.String(), nil
}

func (h *Handlers) slotsText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if len(args) != 2 {
		return "", apperr.Validation("slots", "usage: /slots <teacher id> <date>")
	}
	teacherID, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	date, err := parseDate(args[1])
	if err != nil {
		return "", err
	}

	slots, err := h.slotService.ListSlots(ctx, caller, teacherID, date)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "📭 На этот день слотов нет", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓 Слоты на %s:\n", date.Format("02.01.2006"))
	for _, slot := range slots {
		sb.WriteString("\n")
		sb.WriteString(FormatSlot(slot))
	}
	return sb.String(), nil
}

func (h *Handlers) bookText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if len(args) != 1 {
		return "", apperr.Validation("book", "usage: /book <slot id>")
	}
	slotID, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	reservation, err := h.reservationService.Book(ctx, caller, slotID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Вы записаны! Запись #%d\n\nУзнать своё время: /when %d", reservation.ID, reservation.ID), nil
}

func (h *Handlers) cancelText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if len(args) != 1 {
		return "", apperr.Validation("cancel", "usage: /cancelbooking <reservation id>")
	}
	reservationID, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	if _, err := h.reservationService.Cancel(ctx, caller, reservationID, service.CancelOptions{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Запись #%d отменена", reservationID), nil
}

func (h *Handlers) whenText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if len(args) != 1 {
		return "", apperr.Validation("when", "usage: /when <reservation id>")
	}
	reservationID, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	view, err := h.reservationService.Visibility(ctx, caller, reservationID)
	if err != nil {
		return "", err
	}
	return FormatVisibility(view, h.clock.Location()), nil
}

func (h *Handlers) breakText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if (len(args) != 3 && len(args) != 4) || (args[2] != "on" && args[2] != "off") {
		return "", apperr.Validation("break", "usage: /break <date> <time> on|off [teacher id]")
	}
	date, err := parseDate(args[0])
	if err != nil {
		return "", err
	}
	// Без id преподавателя меняется собственное расписание
	teacherID := caller.ID
	if len(args) == 4 {
		if teacherID, err = parseID(args[3]); err != nil {
			return "", err
		}
	}

	slot, err := h.slotService.SetBreak(ctx, caller, date, args[1], teacherID, args[2] == "on")
	if err != nil {
		return "", err
	}
	if slot.IsBreak() {
		return fmt.Sprintf("☕️ Слот %s теперь перерыв", slot.TimeLabel), nil
	}
	return fmt.Sprintf("✅ Слот %s снова открыт для записи", slot.TimeLabel), nil
}

func (h *Handlers) grantWeeklyText(ctx context.Context, caller model.Caller, args []string) (string, error) {
	if len(args) != 1 {
		return "", apperr.Validation("grant weekly", "usage: /grantweekly <quantity>")
	}
	quantity, err := strconv.Atoi(args[0])
	if err != nil {
		return "", apperr.Validation("grant weekly", "quantity %q is not a number", args[0])
	}

	res, err := h.ticketService.GrantBulk(ctx, caller, quantity, "weekly")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🎟 Выдано по %d тикетов %d студентам\nПартия: %s", quantity, res.Succeeded, res.BatchID), nil
}

func (h *Handlers) publishText(ctx context.Context, caller model.Caller, _ []string) (string, error) {
	res, err := h.publishService.Run(ctx, caller, service.TriggerManual)
	if err != nil {
		return "", err
	}
	return FormatSweep(res), nil
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("parse id", "invalid id %q", value)
	}
	return id, nil
}

func parseDate(value string) (time.Time, error) {
	date, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("parse date", "invalid date %q", value)
	}
	return date, nil
}
