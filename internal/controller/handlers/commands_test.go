package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository/memory"
	"github.com/Freeeeeet/mentor_queue/internal/schedule"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var kst = time.FixedZone("KST", 9*60*60)

func newTestHandlers(t *testing.T) (*Handlers, *memory.Store) {
	t.Helper()

	logger := zap.NewNop()
	store := memory.NewStore()
	clk := &clock.Fixed{At: time.Date(2024, 2, 28, 12, 0, 0, 0, kst)}
	events := &queue.Recorder{}

	h := NewHandlers(
		service.NewUserService(store, logger),
		service.NewReservationService(store, clk, events, logger),
		service.NewTicketService(store, clk, events, logger),
		service.NewSlotService(store, logger),
		service.NewPublishService(store, clk, nil, events, logger),
		clk,
		logger,
	)
	return h, store
}

func caller(store *memory.Store, role model.Role) model.Caller {
	return model.Caller{ID: store.AddUser(role, string(role)), Role: role}
}

func TestStudentCommands(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandlers(t)
	teacher := caller(store, model.RoleTeacher)
	student := caller(store, model.RoleStudent)
	store.SetBalance(student.ID, 3)

	expanded, err := h.slotService.Expand(ctx, teacher, service.ExpandRequest{
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TeacherID: teacher.ID,
		AMStart:   "09:00",
		AMEnd:     "09:20",
		Session:   service.SessionAM,
	})
	require.NoError(t, err)

	text, err := h.balanceText(ctx, student, nil)
	require.NoError(t, err)
	assert.Equal(t, "🎟 У вас 3 из 10 тикетов", text)

	text, err = h.bookingsText(ctx, student, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "нет записей")

	text, err = h.slotsText(ctx, student, []string{fmt.Sprint(teacher.ID), "2024-03-01"})
	require.NoError(t, err)
	assert.Contains(t, text, "🟢 09:00 свободен")
	assert.Contains(t, text, "🟢 09:10 свободен")

	text, err = h.bookText(ctx, student, []string{fmt.Sprint(expanded.Created[0].ID)})
	require.NoError(t, err)
	mine, err := h.reservationService.ListMine(ctx, student, student.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	reservationID := fmt.Sprint(mine[0].ID)
	assert.Contains(t, text, "Запись #"+reservationID)

	text, err = h.slotsText(ctx, student, []string{fmt.Sprint(teacher.ID), "2024-03-01"})
	require.NoError(t, err)
	assert.Contains(t, text, "🔴 09:00 занят")

	text, err = h.whenText(ctx, student, []string{reservationID})
	require.NoError(t, err)
	assert.Contains(t, text, "место в очереди: 1 (блок с 09:00)")
	assert.Contains(t, text, "01.03.2024 09:00")
	assert.Contains(t, text, "🔒 Задача откроется 29.02.2024 09:00")

	text, err = h.bookingsText(ctx, student, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "✅ #"+reservationID+": 01.03.2024 09:00, активна")

	text, err = h.cancelText(ctx, student, []string{reservationID})
	require.NoError(t, err)
	assert.Equal(t, "✅ Запись #"+reservationID+" отменена", text)
	assert.Equal(t, 2, store.Balance(student.ID))
}

func TestCommandArgumentErrors(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandlers(t)
	student := caller(store, model.RoleStudent)
	admin := caller(store, model.RoleAdmin)

	tests := []struct {
		name  string
		reply replyFunc
		who   model.Caller
		args  []string
	}{
		{"book without id", h.bookText, student, nil},
		{"book with text id", h.bookText, student, []string{"abc"}},
		{"slots with bad date", h.slotsText, student, []string{"1", "01.03.2024"}},
		{"break without state", h.breakText, student, []string{"2024-03-01", "09:00"}},
		{"break bad teacher id", h.breakText, student, []string{"2024-03-01", "09:00", "on", "x"}},
		{"grant with text quantity", h.grantWeeklyText, admin, []string{"many"}},
		{"when with negative id", h.whenText, student, []string{"-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.reply(ctx, tt.who, tt.args)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, ErrorMessage(err), "/help")
		})
	}
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandlers(t)
	admin := caller(store, model.RoleAdmin)
	student := caller(store, model.RoleStudent)
	teacher := caller(store, model.RoleTeacher)

	text, err := h.grantWeeklyText(ctx, admin, []string{"4"})
	require.NoError(t, err)
	assert.Contains(t, text, "Выдано по 4 тикетов 1 студентам")
	assert.Equal(t, 4, store.Balance(student.ID))

	_, err = h.grantWeeklyText(ctx, teacher, []string{"4"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	text, err = h.publishText(ctx, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, "📢 Проверено задач: 0, опубликовано: 0", text)
}

func TestBreakCommand(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandlers(t)
	teacher := caller(store, model.RoleTeacher)

	_, err := h.slotService.Expand(ctx, teacher, service.ExpandRequest{
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TeacherID: teacher.ID,
		AMStart:   "09:00",
		AMEnd:     "09:10",
		Session:   service.SessionAM,
	})
	require.NoError(t, err)

	text, err := h.breakText(ctx, teacher, []string{"2024-03-01", "09:00", "on"})
	require.NoError(t, err)
	assert.Equal(t, "☕️ Слот 09:00 теперь перерыв", text)

	text, err = h.breakText(ctx, teacher, []string{"2024-03-01", "09:00", "off"})
	require.NoError(t, err)
	assert.Equal(t, "✅ Слот 09:00 снова открыт для записи", text)
}

func TestBreakCommandForAnotherTeacher(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHandlers(t)
	admin := caller(store, model.RoleAdmin)
	teacher := caller(store, model.RoleTeacher)
	other := caller(store, model.RoleTeacher)

	_, err := h.slotService.Expand(ctx, teacher, service.ExpandRequest{
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TeacherID: teacher.ID,
		AMStart:   "09:00",
		AMEnd:     "09:10",
		Session:   service.SessionAM,
	})
	require.NoError(t, err)
	teacherArg := fmt.Sprint(teacher.ID)

	text, err := h.breakText(ctx, admin, []string{"2024-03-01", "09:00", "on", teacherArg})
	require.NoError(t, err)
	assert.Equal(t, "☕️ Слот 09:00 теперь перерыв", text)

	_, err = h.breakText(ctx, other, []string{"2024-03-01", "09:00", "off", teacherArg})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	text, err = h.breakText(ctx, admin, []string{"2024-03-01", "09:00", "off", teacherArg})
	require.NoError(t, err)
	assert.Equal(t, "✅ Слот 09:00 снова открыт для записи", text)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "❌ Слот уже занят", ErrorMessage(fmt.Errorf("book: %w", apperr.ErrSlotFull)))
	assert.Equal(t, "❌ Недостаточно тикетов", ErrorMessage(apperr.Wrap(apperr.ErrInsufficientBalance, "book", nil)))
	assert.Equal(t, "⏳ Сервис перегружен, попробуйте ещё раз", ErrorMessage(apperr.Wrap(apperr.ErrTransient, "book", nil)))
	assert.Equal(t, "❌ Произошла ошибка. Попробуйте позже.", ErrorMessage(errors.New("boom")))
}

func TestFormatVisibility(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 20, 0, 0, kst)
	view := &service.Visibility{
		QueuePosition: 3,
		BlockStart:    "09:00",
		Schedule: schedule.View{
			ScheduledStartAt: start,
			VisibleFrom:      start.Add(-time.Hour),
			CanShowProblem:   true,
			TimeUntilStart:   25 * time.Minute,
		},
		Problem: &model.Problem{Title: "Graphs", Content: "BFS"},
	}

	text := FormatVisibility(view, kst)
	assert.Contains(t, text, "место в очереди: 3")
	assert.Contains(t, text, "Начало: 01.03.2024 09:20")
	assert.Contains(t, text, "до начала 25 мин")
	assert.Contains(t, text, "📝 Graphs\nBFS")

	assert.Equal(t, "1 ч 30 мин", formatDuration(90*time.Minute))
	assert.Equal(t, "2 ч", formatDuration(2*time.Hour))
}

func TestCommandArgs(t *testing.T) {
	assert.Nil(t, commandArgs("/balance"))
	assert.Equal(t, []string{"2024-03-01", "09:00", "on"}, commandArgs("/break  2024-03-01 09:00 on"))
}
