package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/Freeeeeet/mentor_queue/internal/schedule"
	"go.uber.org/zap"
)

// CancelOptions параметры отмены; по умолчанию тикет не возвращается
type CancelOptions struct {
	Refund bool
}

// Visibility расписание и видимость задачи для бронирования
type Visibility struct {
	ReservationID int64          `json:"reservation_id"`
	QueuePosition int            `json:"queue_position"`
	BlockStart    string         `json:"block_start"`
	Schedule      schedule.View  `json:"schedule"`
	Problem       *model.Problem `json:"problem,omitempty"` // только когда задачу уже можно показать
}

type ReservationService struct {
	store  repository.Store
	clock  clock.Clock
	events EventPublisher
	logger *zap.Logger
}

func NewReservationService(store repository.Store, clk clock.Clock, events EventPublisher, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		store:  store,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

// Book записывает вызывающего студента на слот.
// Проверка слота, проверка баланса, создание брони, списание тикета и
// увеличение счётчика выполняются одной транзакцией.
func (s *ReservationService) Book(ctx context.Context, caller model.Caller, slotID int64) (*model.Reservation, error) {
	const op = "book slot"

	if err := caller.Authorize(model.CapBook); err != nil {
		return nil, err
	}
	studentID := caller.ID

	var reservation *model.Reservation
	ticketsLeft := 0

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		slot, err := repos.Slots().GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if slot == nil {
			return apperr.NotFound(op, "slot %d not found", slotID)
		}
		if slot.IsFull() {
			return apperr.New(apperr.ErrSlotFull, op, "slot %d is not available", slotID)
		}

		balance, err := repos.Tickets().GetBalanceForUpdate(ctx, studentID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance < 1 {
			return apperr.New(apperr.ErrInsufficientBalance, op, "student %d has no tickets", studentID)
		}

		reservation = &model.Reservation{
			StudentID: studentID,
			SlotID:    slotID,
			Status:    model.ReservationActive,
		}
		if err := repos.Reservations().Create(ctx, reservation); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		ticketsLeft, err = repos.Tickets().Consume(ctx, studentID, 1)
		if err != nil {
			return fmt.Errorf("consume ticket: %w", err)
		}

		updated, err := repos.Slots().IncrementReservations(ctx, slotID)
		if err != nil {
			return fmt.Errorf("increment reservations: %w", err)
		}
		reservation.Slot = updated

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot booked",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("slot_id", slotID),
		zap.Int("tickets_left", ticketsLeft),
	)

	publishEvent(ctx, s.events, s.logger, queue.ReservationCreatedEvent{
		ReservationID: reservation.ID,
		StudentID:     studentID,
		SlotID:        slotID,
		TeacherID:     reservation.Slot.TeacherID,
		SlotDate:      reservation.Slot.SlotDate.Format(model.DateLayout),
		TimeLabel:     reservation.Slot.TimeLabel,
		TicketsLeft:   ticketsLeft,
		CreatedAt:     reservation.CreatedAt,
	})

	return reservation, nil
}

// Cancel отменяет бронирование и освобождает слот.
// Возврат тикета только по явному запросу учителя или админа.
func (s *ReservationService) Cancel(ctx context.Context, caller model.Caller, reservationID int64, opts CancelOptions) (*model.Reservation, error) {
	const op = "cancel reservation"

	if err := caller.Authorize(model.CapCancel); err != nil {
		return nil, err
	}
	if opts.Refund {
		if err := caller.Authorize(model.CapRefund); err != nil {
			return nil, err
		}
	}

	var reservation *model.Reservation

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		reservation, err = repos.Reservations().GetByIDForUpdate(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("lock reservation: %w", err)
		}
		if reservation == nil {
			return apperr.NotFound(op, "reservation %d not found", reservationID)
		}

		slot, err := repos.Slots().GetByIDForUpdate(ctx, reservation.SlotID)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if slot == nil {
			return apperr.NotFound(op, "slot %d not found", reservation.SlotID)
		}

		if !canManageReservation(caller, reservation, slot) {
			return apperr.Forbidden(op, "user %d cannot cancel reservation %d", caller.ID, reservationID)
		}
		if !reservation.IsActive() {
			return apperr.Conflict(op, "reservation %d is already %s", reservationID, reservation.Status)
		}

		if err := repos.Reservations().UpdateStatus(ctx, reservationID, model.ReservationCancelled); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		reservation.Status = model.ReservationCancelled

		updated, err := repos.Slots().DecrementReservations(ctx, slot.ID)
		if err != nil {
			return fmt.Errorf("decrement reservations: %w", err)
		}
		reservation.Slot = updated

		session, err := repos.Sessions().GetByReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if session != nil && session.Status.CanMoveTo(model.SessionCancelled) {
			if err := repos.Sessions().UpdateStatus(ctx, session.ID, model.SessionCancelled); err != nil {
				return fmt.Errorf("cancel session: %w", err)
			}
		}

		if opts.Refund {
			grant := &model.TicketGrant{
				StudentID: reservation.StudentID,
				Quantity:  1,
				GrantedBy: caller.ID,
				Type:      model.GrantRefund,
				Reason:    fmt.Sprintf("reservation %d cancelled", reservationID),
			}
			if err := repos.Tickets().CreateGrant(ctx, grant); err != nil {
				return fmt.Errorf("create refund grant: %w", err)
			}
			if _, _, err := repos.Tickets().AddClamped(ctx, reservation.StudentID, 1, model.MaxTickets); err != nil {
				return fmt.Errorf("refund ticket: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reservation cancelled",
		zap.Int64("reservation_id", reservationID),
		zap.Int64("student_id", reservation.StudentID),
		zap.Int64("cancelled_by", caller.ID),
		zap.Bool("refund", opts.Refund),
	)

	publishEvent(ctx, s.events, s.logger, queue.ReservationCancelledEvent{
		ReservationID: reservationID,
		StudentID:     reservation.StudentID,
		SlotID:        reservation.SlotID,
		CancelledBy:   caller.ID,
		Refunded:      opts.Refund,
		CancelledAt:   s.clock.Now(),
	})

	return reservation, nil
}

// ListMine бронирования студента вместе со слотами
func (s *ReservationService) ListMine(ctx context.Context, caller model.Caller, studentID int64) ([]*model.Reservation, error) {
	if err := caller.Authorize(model.CapViewSchedule); err != nil {
		return nil, err
	}
	if caller.Role == model.RoleStudent && caller.ID != studentID {
		return nil, apperr.Forbidden("list reservations", "student %d cannot view reservations of %d", caller.ID, studentID)
	}

	repos := s.store.Repos()
	reservations, err := repos.Reservations().ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	for _, reservation := range reservations {
		slot, err := repos.Slots().GetByID(ctx, reservation.SlotID)
		if err != nil {
			return nil, fmt.Errorf("get slot: %w", err)
		}
		reservation.Slot = slot
	}

	return reservations, nil
}

// Visibility считает позицию в очереди блока, время старта и предпросмотра.
// Результат не кешируется: каждый вызов пересчитывает его на текущее время.
func (s *ReservationService) Visibility(ctx context.Context, caller model.Caller, reservationID int64) (*Visibility, error) {
	const op = "get visibility"

	if err := caller.Authorize(model.CapViewSchedule); err != nil {
		return nil, err
	}

	repos := s.store.Repos()

	reservation, err := repos.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperr.NotFound(op, "reservation %d not found", reservationID)
	}

	slot, err := repos.Slots().GetByID(ctx, reservation.SlotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, apperr.NotFound(op, "slot %d not found", reservation.SlotID)
	}

	if !canManageReservation(caller, reservation, slot) {
		return nil, apperr.Forbidden(op, "user %d cannot view reservation %d", caller.ID, reservationID)
	}
	if !reservation.IsActive() {
		return nil, apperr.Conflict(op, "reservation %d is cancelled and has no queue position", reservationID)
	}

	previewLead := time.Duration(model.DefaultPreviewLeadHours) * time.Hour
	var problem *model.Problem

	session, err := repos.Sessions().GetByReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session != nil {
		problem, err = repos.Problems().GetByID(ctx, session.ProblemID)
		if err != nil {
			return nil, fmt.Errorf("get problem: %w", err)
		}
		if problem != nil {
			previewLead = problem.PreviewLead()
		}
	}

	queued, err := queueSchedule(ctx, repos, s.clock.Location(), reservation, slot, previewLead)
	if err != nil {
		return nil, err
	}
	view := queued.Computation.At(s.clock.Now())

	result := &Visibility{
		ReservationID: reservationID,
		QueuePosition: queued.Position,
		BlockStart:    queued.BlockStart,
		Schedule:      view,
	}
	if problem != nil && view.CanShowProblem && problem.Status == model.ProblemPublished {
		result.Problem = problem
	}

	return result, nil
}

type queuedSchedule struct {
	BlockStart  string
	Position    int
	Computation schedule.Computation
}

// queueSchedule расписание бронирования внутри его блока (дата, учитель, половина дня)
func queueSchedule(ctx context.Context, repos repository.Repos, loc *time.Location, reservation *model.Reservation, slot *model.TimeSlot, previewLead time.Duration) (*queuedSchedule, error) {
	const op = "compute schedule"

	label, err := repos.Slots().BlockStartLabel(ctx, slot.TeacherID, slot.SlotDate, slot.Period)
	if err != nil {
		return nil, fmt.Errorf("get block start: %w", err)
	}
	blockStart, err := model.CivilTime(slot.SlotDate, label, loc)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, op, err)
	}

	position, err := repos.Reservations().QueuePosition(ctx, reservation, slot)
	if err != nil {
		return nil, fmt.Errorf("get queue position: %w", err)
	}

	computation, err := schedule.Compute(blockStart, position, previewLead)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, op, err)
	}
	return &queuedSchedule{BlockStart: label, Position: position, Computation: computation}, nil
}

// canManageReservation студент свою бронь, учитель брони на свои слоты, админ любые
func canManageReservation(caller model.Caller, reservation *model.Reservation, slot *model.TimeSlot) bool {
	switch caller.Role {
	case model.RoleAdmin:
		return true
	case model.RoleTeacher:
		return slot.TeacherID == caller.ID
	case model.RoleStudent:
		return reservation.StudentID == caller.ID
	}
	return false
}
