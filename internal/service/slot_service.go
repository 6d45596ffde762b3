package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"go.uber.org/zap"
)

// SessionFilter какие половины дня разворачивать
type SessionFilter string

const (
	SessionAM   SessionFilter = "AM"
	SessionPM   SessionFilter = "PM"
	SessionBoth SessionFilter = "BOTH"
)

// Окно отключённой половины дня: начало позже конца, тиков ноль
const (
	suppressedStart = "23:59"
	suppressedEnd   = "23:58"
)

type ExpandRequest struct {
	Date            time.Time
	TeacherID       int64
	AMStart         string
	AMEnd           string
	PMStart         string
	PMEnd           string
	IntervalMinutes int
	Session         SessionFilter
}

type ExpandResult struct {
	Created    []*model.TimeSlot `json:"created"`
	Duplicates []string          `json:"duplicates"` // метки времени, для которых слот уже был
}

type SlotService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewSlotService(store repository.Store, logger *zap.Logger) *SlotService {
	return &SlotService{
		store:  store,
		logger: logger,
	}
}

type tick struct {
	label  string
	period model.SessionPeriod
}

// Expand разворачивает шаблон дня учителя в слоты.
// Существующие слоты не трогаются и попадают в Duplicates.
func (s *SlotService) Expand(ctx context.Context, caller model.Caller, req ExpandRequest) (*ExpandResult, error) {
	const op = "expand slots"

	if err := caller.Authorize(model.CapManageSlots); err != nil {
		return nil, err
	}
	if !ownsTeacherScope(caller, req.TeacherID) {
		return nil, apperr.Forbidden(op, "teacher %d cannot create slots for teacher %d", caller.ID, req.TeacherID)
	}

	ticks, err := templateTicks(req)
	if err != nil {
		return nil, err
	}

	date := model.DateOnly(req.Date)
	var result *ExpandResult

	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		result = &ExpandResult{}

		teacher, err := repos.Users().GetByID(ctx, req.TeacherID)
		if err != nil {
			return fmt.Errorf("get teacher: %w", err)
		}
		if teacher == nil {
			return apperr.NotFound(op, "teacher %d not found", req.TeacherID)
		}
		if teacher.Role != model.RoleTeacher {
			return apperr.Validation(op, "user %d is not a teacher", req.TeacherID)
		}

		for _, t := range ticks {
			slot := &model.TimeSlot{
				SlotDate:            date,
				TimeLabel:           t.label,
				TeacherID:           req.TeacherID,
				Period:              t.period,
				MaxCapacity:         model.SlotCapacity,
				CurrentReservations: 0,
				IsAvailable:         true,
			}

			created, err := repos.Slots().CreateIfAbsent(ctx, slot)
			if err != nil {
				return fmt.Errorf("create slot %s: %w", t.label, err)
			}
			if !created {
				result.Duplicates = append(result.Duplicates, t.label)
				continue
			}
			result.Created = append(result.Created, slot)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slots expanded",
		zap.Int64("teacher_id", req.TeacherID),
		zap.String("date", date.Format(model.DateLayout)),
		zap.String("session", string(req.Session)),
		zap.Int("created", len(result.Created)),
		zap.Int("duplicates", len(result.Duplicates)),
	)

	return result, nil
}

// templateTicks считает метки времени для обеих половин дня
func templateTicks(req ExpandRequest) ([]tick, error) {
	const op = "expand slots"

	interval := req.IntervalMinutes
	if interval == 0 {
		interval = model.DefaultIntervalMinutes
	}
	if interval < 0 {
		return nil, apperr.Validation(op, "interval must be positive, got %d", req.IntervalMinutes)
	}

	session := req.Session
	if session == "" {
		session = SessionBoth
	}

	amStart, amEnd := req.AMStart, req.AMEnd
	pmStart, pmEnd := req.PMStart, req.PMEnd
	switch session {
	case SessionAM:
		pmStart, pmEnd = suppressedStart, suppressedEnd
	case SessionPM:
		amStart, amEnd = suppressedStart, suppressedEnd
	case SessionBoth:
	default:
		return nil, apperr.Validation(op, "unknown session %q", req.Session)
	}

	am, err := windowTicks(amStart, amEnd, interval, model.PeriodAM)
	if err != nil {
		return nil, err
	}
	pm, err := windowTicks(pmStart, pmEnd, interval, model.PeriodPM)
	if err != nil {
		return nil, err
	}

	return append(am, pm...), nil
}

// windowTicks метки start <= t < end с шагом interval минут
func windowTicks(start, end string, interval int, period model.SessionPeriod) ([]tick, error) {
	from, err := minuteOfDay(start)
	if err != nil {
		return nil, err
	}
	to, err := minuteOfDay(end)
	if err != nil {
		return nil, err
	}

	var ticks []tick
	for m := from; m < to; m += interval {
		ticks = append(ticks, tick{
			label:  fmt.Sprintf("%02d:%02d", m/60, m%60),
			period: period,
		})
	}
	return ticks, nil
}

func minuteOfDay(label string) (int, error) {
	t, err := time.Parse(model.TimeLabelLayout, label)
	if err != nil {
		return 0, apperr.Validation("parse time label", "invalid time %q, expected HH:MM", label)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// SetBreak переводит слот в перерыв или возвращает в запись
func (s *SlotService) SetBreak(ctx context.Context, caller model.Caller, date time.Time, timeLabel string, teacherID int64, isBreak bool) (*model.TimeSlot, error) {
	const op = "set break"

	if err := caller.Authorize(model.CapManageSlots); err != nil {
		return nil, err
	}
	if !ownsTeacherScope(caller, teacherID) {
		return nil, apperr.Forbidden(op, "teacher %d cannot change slots of teacher %d", caller.ID, teacherID)
	}
	if _, err := minuteOfDay(timeLabel); err != nil {
		return nil, err
	}

	var result *model.TimeSlot
	changed := false

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		changed = false

		// Блокируем весь день, чтобы параллельные перерывы не обошли лимит
		day, err := repos.Slots().LockTeacherDay(ctx, teacherID, date)
		if err != nil {
			return fmt.Errorf("lock teacher day: %w", err)
		}

		var slot *model.TimeSlot
		breaks := 0
		for _, candidate := range day {
			if candidate.TimeLabel == timeLabel {
				slot = candidate
			}
			if candidate.IsBreak() {
				breaks++
			}
		}
		if slot == nil {
			return apperr.NotFound(op, "no slot %s %s for teacher %d", date.Format(model.DateLayout), timeLabel, teacherID)
		}
		result = slot

		if isBreak {
			if slot.CurrentReservations > 0 {
				return apperr.Conflict(op, "slot %d has %d active reservations", slot.ID, slot.CurrentReservations)
			}
			if slot.IsBreak() {
				return nil
			}
			if breaks >= model.MaxBreaksPerDay {
				return apperr.New(apperr.ErrQuotaExceeded, op, "teacher %d already has %d breaks on %s", teacherID, breaks, date.Format(model.DateLayout))
			}
		} else {
			if slot.IsAvailable {
				return nil
			}
			if slot.CurrentReservations >= slot.MaxCapacity {
				return apperr.Conflict(op, "slot %d is booked out", slot.ID)
			}
		}

		if err := repos.Slots().SetAvailable(ctx, slot.ID, !isBreak); err != nil {
			return fmt.Errorf("set availability: %w", err)
		}
		slot.IsAvailable = !isBreak
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Slot availability changed",
			zap.Int64("slot_id", result.ID),
			zap.Int64("teacher_id", teacherID),
			zap.String("time", timeLabel),
			zap.Bool("break", isBreak),
		)
	}

	return result, nil
}

// ListSlots слоты учителя за день
func (s *SlotService) ListSlots(ctx context.Context, caller model.Caller, teacherID int64, date time.Time) ([]*model.TimeSlot, error) {
	if err := caller.Authorize(model.CapViewSlots); err != nil {
		return nil, err
	}

	slots, err := s.store.Repos().Slots().ListByTeacherDate(ctx, teacherID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}
