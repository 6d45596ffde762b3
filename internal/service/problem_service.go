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
	"go.uber.org/zap"
)

const (
	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

type CreateProblemInput struct {
	Title              string
	Content            string
	ScheduledPublishAt *time.Time
	PreviewLeadHours   *int // nil значит 24 часа
}

type ProblemService struct {
	store  repository.Store
	clock  clock.Clock
	events EventPublisher
	logger *zap.Logger
}

func NewProblemService(store repository.Store, clk clock.Clock, events EventPublisher, logger *zap.Logger) *ProblemService {
	return &ProblemService{
		store:  store,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

// CreateProblem создаёт черновик задачи
func (s *ProblemService) CreateProblem(ctx context.Context, caller model.Caller, in CreateProblemInput) (*model.Problem, error) {
	const op = "create problem"

	if err := caller.Authorize(model.CapManageProblem); err != nil {
		return nil, err
	}

	lead := model.DefaultPreviewLeadHours
	if in.PreviewLeadHours != nil {
		lead = *in.PreviewLeadHours
	}
	if lead < 0 {
		return nil, apperr.Validation(op, "preview lead must not be negative, got %d", lead)
	}

	problem := &model.Problem{
		AuthorID:           caller.ID,
		Title:              in.Title,
		Content:            in.Content,
		Status:             model.ProblemDraft,
		ScheduledPublishAt: in.ScheduledPublishAt,
		PreviewLeadHours:   lead,
	}

	if err := s.store.Repos().Problems().Create(ctx, problem); err != nil {
		return nil, fmt.Errorf("create problem: %w", err)
	}

	s.logger.Info("Problem created",
		zap.Int64("problem_id", problem.ID),
		zap.Int64("author_id", caller.ID),
		zap.Bool("scheduled", problem.ScheduledPublishAt != nil),
	)

	return problem, nil
}

// GetProblem учителю и админу видна любая задача. Студенту только
// опубликованная, назначенная на его активное бронирование и только после
// открытия окна предпросмотра.
func (s *ProblemService) GetProblem(ctx context.Context, caller model.Caller, problemID int64) (*model.Problem, error) {
	const op = "get problem"

	if err := caller.Authorize(model.CapViewSchedule); err != nil {
		return nil, err
	}

	problem, err := s.store.Repos().Problems().GetByID(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	if problem == nil {
		return nil, apperr.NotFound(op, "problem %d not found", problemID)
	}
	if caller.Authorize(model.CapManageProblem) == nil {
		return problem, nil
	}
	if problem.Status != model.ProblemPublished {
		return nil, apperr.NotFound(op, "problem %d not found", problemID)
	}

	visible, err := s.visibleTo(ctx, caller.ID, problem)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, apperr.NotFound(op, "problem %d not found", problemID)
	}

	return problem, nil
}

// visibleTo открыто ли окно предпросмотра хотя бы по одному занятию студента
func (s *ProblemService) visibleTo(ctx context.Context, studentID int64, problem *model.Problem) (bool, error) {
	repos := s.store.Repos()

	sessions, err := repos.Sessions().ListByStudentProblem(ctx, studentID, problem.ID)
	if err != nil {
		return false, fmt.Errorf("list sessions: %w", err)
	}

	now := s.clock.Now()
	for _, session := range sessions {
		if session.Status == model.SessionCancelled {
			continue
		}

		reservation, err := repos.Reservations().GetByID(ctx, session.ReservationID)
		if err != nil {
			return false, fmt.Errorf("get reservation: %w", err)
		}
		if reservation == nil || !reservation.IsActive() || reservation.StudentID != studentID {
			continue
		}

		slot, err := repos.Slots().GetByID(ctx, reservation.SlotID)
		if err != nil {
			return false, fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			continue
		}

		queued, err := queueSchedule(ctx, repos, s.clock.Location(), reservation, slot, problem.PreviewLead())
		if err != nil {
			return false, err
		}
		if queued.Computation.CanShowProblem(now) {
			return true, nil
		}
	}
	return false, nil
}

// Transition переводит задачу по жизненному циклу draft -> published -> archived
func (s *ProblemService) Transition(ctx context.Context, caller model.Caller, problemID int64, target model.ProblemStatus) (*model.Problem, error) {
	const op = "transition problem"

	if err := caller.Authorize(model.CapManageProblem); err != nil {
		return nil, err
	}

	var problem *model.Problem
	var from model.ProblemStatus
	now := s.clock.Now()

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		problem, err = repos.Problems().GetByIDForUpdate(ctx, problemID)
		if err != nil {
			return fmt.Errorf("lock problem: %w", err)
		}
		if problem == nil {
			return apperr.NotFound(op, "problem %d not found", problemID)
		}
		from = problem.Status

		if err := s.checkTransition(ctx, repos, problem, target, now); err != nil {
			return err
		}

		ok, err := repos.Problems().TransitionStatus(ctx, problemID, from, target, now)
		if err != nil {
			return fmt.Errorf("update problem status: %w", err)
		}
		if !ok {
			return apperr.Conflict(op, "problem %d changed concurrently", problemID)
		}

		audit := &model.ProblemAudit{
			ProblemID:  problemID,
			FromStatus: from,
			ToStatus:   target,
			Trigger:    TriggerManual,
			ActorID:    caller.ID,
		}
		if err := repos.Problems().InsertAudit(ctx, audit); err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}

		problem.Status = target
		problem.UpdatedAt = now
		if target == model.ProblemPublished {
			problem.PublishedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Problem status changed",
		zap.Int64("problem_id", problemID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.Int64("actor_id", caller.ID),
	)

	if target == model.ProblemPublished {
		publishEvent(ctx, s.events, s.logger, queue.ProblemPublishedEvent{
			ProblemID:   problemID,
			Title:       problem.Title,
			Trigger:     TriggerManual,
			PublishedAt: now,
		})
	}

	return problem, nil
}

func (s *ProblemService) checkTransition(ctx context.Context, repos repository.Repos, problem *model.Problem, target model.ProblemStatus, now time.Time) error {
	const op = "transition problem"

	switch {
	case problem.Status == model.ProblemDraft && target == model.ProblemPublished:
		if !problem.HasContent() {
			return apperr.Validation(op, "problem %d needs a title and content before publishing", problem.ID)
		}
		if !problem.DueAt(now) {
			return apperr.Conflict(op, "problem %d is scheduled for %s", problem.ID, problem.ScheduledPublishAt.Format(time.RFC3339))
		}
		return nil

	case problem.Status == model.ProblemDraft && target == model.ProblemArchived:
		return nil

	case problem.Status == model.ProblemPublished && target == model.ProblemArchived:
		active, err := repos.Sessions().CountBlockingArchive(ctx, problem.ID)
		if err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}
		if active > 0 {
			return apperr.Conflict(op, "problem %d has %d sessions in progress", problem.ID, active)
		}
		return nil
	}

	return apperr.Conflict(op, "cannot move problem %d from %s to %s", problem.ID, problem.Status, target)
}

// History журнал переходов задачи по порядку
func (s *ProblemService) History(ctx context.Context, caller model.Caller, problemID int64) ([]*model.ProblemAudit, error) {
	if err := caller.Authorize(model.CapManageProblem); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	problem, err := repos.Problems().GetByID(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	if problem == nil {
		return nil, apperr.NotFound("problem history", "problem %d not found", problemID)
	}

	entries, err := repos.Problems().ListAudit(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	if entries == nil {
		entries = []*model.ProblemAudit{}
	}
	return entries, nil
}

// AssignProblem назначает задачу на бронирование и создаёт занятие
func (s *ProblemService) AssignProblem(ctx context.Context, caller model.Caller, reservationID, problemID int64) (*model.Session, error) {
	const op = "assign problem"

	if err := caller.Authorize(model.CapManageProblem); err != nil {
		return nil, err
	}

	var session *model.Session

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		reservation, err := repos.Reservations().GetByIDForUpdate(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("lock reservation: %w", err)
		}
		if reservation == nil {
			return apperr.NotFound(op, "reservation %d not found", reservationID)
		}
		if !reservation.IsActive() {
			return apperr.Conflict(op, "reservation %d is cancelled", reservationID)
		}

		slot, err := repos.Slots().GetByID(ctx, reservation.SlotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return apperr.NotFound(op, "slot %d not found", reservation.SlotID)
		}
		if !ownsTeacherScope(caller, slot.TeacherID) {
			return apperr.Forbidden(op, "teacher %d does not own slot %d", caller.ID, slot.ID)
		}

		// блокировка задачи упорядочивает назначение с переводом в архив
		problem, err := repos.Problems().GetByIDForUpdate(ctx, problemID)
		if err != nil {
			return fmt.Errorf("lock problem: %w", err)
		}
		if problem == nil {
			return apperr.NotFound(op, "problem %d not found", problemID)
		}
		if problem.Status == model.ProblemArchived {
			return apperr.Conflict(op, "problem %d is archived", problemID)
		}

		existing, err := repos.Sessions().GetByReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if existing != nil {
			return apperr.Conflict(op, "reservation %d already has session %d", reservationID, existing.ID)
		}

		session = &model.Session{
			ReservationID: reservationID,
			ProblemID:     problemID,
			StudentID:     reservation.StudentID,
			Status:        model.SessionScheduled,
		}
		if err := repos.Sessions().Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Problem assigned",
		zap.Int64("session_id", session.ID),
		zap.Int64("reservation_id", reservationID),
		zap.Int64("problem_id", problemID),
	)

	return session, nil
}

// SetSessionStatus двигает занятие по статусам
func (s *ProblemService) SetSessionStatus(ctx context.Context, caller model.Caller, sessionID int64, status model.SessionStatus) (*model.Session, error) {
	const op = "set session status"

	if err := caller.Authorize(model.CapManageProblem); err != nil {
		return nil, err
	}

	var session *model.Session

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		current, err := repos.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if current == nil {
			return apperr.NotFound(op, "session %d not found", sessionID)
		}

		// Порядок блокировок как в Transition: сначала задача, потом занятие
		problem, err := repos.Problems().GetByIDForUpdate(ctx, current.ProblemID)
		if err != nil {
			return fmt.Errorf("lock problem: %w", err)
		}
		session, err = repos.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if session == nil {
			return apperr.NotFound(op, "session %d not found", sessionID)
		}

		if status.BlocksArchive() && (problem == nil || problem.Status == model.ProblemArchived) {
			return apperr.Conflict(op, "problem %d of session %d is archived", current.ProblemID, sessionID)
		}
		if !session.Status.CanMoveTo(status) {
			return apperr.Conflict(op, "session %d cannot move from %s to %s", sessionID, session.Status, status)
		}

		if err := repos.Sessions().UpdateStatus(ctx, sessionID, status); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session status changed",
		zap.Int64("session_id", sessionID),
		zap.String("status", string(status)),
	)

	return session, nil
}
