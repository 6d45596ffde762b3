package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/clock"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/queue"
	"github.com/Freeeeeet/mentor_queue/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBulkConcurrency сколько студентов обрабатывается параллельно при массовой выдаче
const DefaultBulkConcurrency = 8

// GrantOutcome результат выдачи одному студенту
type GrantOutcome struct {
	StudentID int64  `json:"student_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Error     string `json:"error,omitempty"`

	err error
}

// Applied сколько тикетов реально начислено с учётом потолка
func (o GrantOutcome) Applied() int {
	if o.err != nil {
		return 0
	}
	return o.After - o.Before
}

type BulkGrantResult struct {
	BatchID            uuid.UUID      `json:"batch_id"`
	Quantity           int            `json:"quantity"`
	Succeeded          int            `json:"succeeded"`
	Failed             int            `json:"failed"`
	Outcomes           []GrantOutcome `json:"outcomes"`
	RolledBack         bool           `json:"rolled_back"`
	CompensationErrors []string       `json:"compensation_errors,omitempty"`
}

type TicketService struct {
	store       repository.Store
	clock       clock.Clock
	events      EventPublisher
	logger      *zap.Logger
	concurrency int
}

func NewTicketService(store repository.Store, clk clock.Clock, events EventPublisher, logger *zap.Logger) *TicketService {
	return &TicketService{
		store:       store,
		clock:       clk,
		events:      events,
		logger:      logger,
		concurrency: DefaultBulkConcurrency,
	}
}

// SetConcurrency меняет лимит параллельной выдачи
func (s *TicketService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// GrantIndividual выдаёт тикеты одному студенту и возвращает итоговый баланс.
// Запись о выдаче и баланс меняются в одной транзакции: если начисление
// не удалось, запись откатывается вместе с ним.
func (s *TicketService) GrantIndividual(ctx context.Context, caller model.Caller, studentID int64, quantity int, reason string) (int, error) {
	const op = "grant tickets"

	if err := caller.Authorize(model.CapGrantTickets); err != nil {
		return 0, err
	}
	if quantity <= 0 {
		return 0, apperr.Validation(op, "quantity must be positive, got %d", quantity)
	}

	var before, after int
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := ensureStudent(ctx, repos, op, studentID); err != nil {
			return err
		}

		grant := &model.TicketGrant{
			StudentID: studentID,
			Quantity:  quantity,
			GrantedBy: caller.ID,
			Type:      model.GrantIndividual,
			Reason:    reason,
		}
		if err := repos.Tickets().CreateGrant(ctx, grant); err != nil {
			return fmt.Errorf("create grant: %w", err)
		}

		var err error
		before, after, err = repos.Tickets().AddClamped(ctx, studentID, quantity, model.MaxTickets)
		if err != nil {
			return fmt.Errorf("add tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Tickets granted",
		zap.Int64("student_id", studentID),
		zap.Int64("granted_by", caller.ID),
		zap.Int("quantity", quantity),
		zap.Int("before", before),
		zap.Int("after", after),
	)

	publishEvent(ctx, s.events, s.logger, queue.TicketsGrantedEvent{
		GrantType: string(model.GrantIndividual),
		GrantedBy: caller.ID,
		Students:  1,
		Quantity:  quantity,
		GrantedAt: s.clock.Now(),
	})

	return after, nil
}

// GrantBulk выдаёт тикеты всем студентам параллельно.
// Если хоть одна выдача не удалась, все записи пакета удаляются, а уже
// начисленные тикеты списываются обратно; пакет целиком считается неуспешным.
func (s *TicketService) GrantBulk(ctx context.Context, caller model.Caller, quantity int, reason string) (*BulkGrantResult, error) {
	const op = "grant bulk"

	if err := caller.Authorize(model.CapBulkGrant); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, apperr.Validation(op, "quantity must be positive, got %d", quantity)
	}

	students, err := s.store.Repos().Users().ListIDsByRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	result := &BulkGrantResult{
		BatchID:  uuid.New(),
		Quantity: quantity,
		Outcomes: make([]GrantOutcome, len(students)),
	}

	s.logger.Info("Starting bulk ticket grant",
		zap.String("batch_id", result.BatchID.String()),
		zap.Int("students", len(students)),
		zap.Int("quantity", quantity),
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, studentID := range students {
		g.Go(func() error {
			result.Outcomes[i] = s.grantUnit(ctx, caller, result.BatchID, studentID, quantity, reason)
			// Ошибки собираются в Outcomes, чтобы остальные выдачи дошли до конца
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range result.Outcomes {
		if outcome.err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	if result.Failed == 0 {
		s.logger.Info("Bulk ticket grant completed",
			zap.String("batch_id", result.BatchID.String()),
			zap.Int("succeeded", result.Succeeded),
		)
		publishEvent(ctx, s.events, s.logger, queue.TicketsGrantedEvent{
			BatchID:   result.BatchID.String(),
			GrantType: string(model.GrantWeeklyBulk),
			GrantedBy: caller.ID,
			Students:  result.Succeeded,
			Quantity:  quantity,
			GrantedAt: s.clock.Now(),
		})
		return result, nil
	}

	s.logger.Warn("Bulk ticket grant failed, rolling back batch",
		zap.String("batch_id", result.BatchID.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	// Откат выполняется даже если вызывающий уже отменил контекст
	s.compensate(context.WithoutCancel(ctx), result)

	if !result.RolledBack {
		return result, apperr.New(apperr.ErrPartialFailure, op, "%d of %d students failed, batch %s rolled back incompletely: %s",
			result.Failed, len(students), result.BatchID, strings.Join(result.CompensationErrors, "; "))
	}
	return result, apperr.New(apperr.ErrPartialFailure, op, "%d of %d students failed, batch %s rolled back",
		result.Failed, len(students), result.BatchID)
}

func (s *TicketService) grantUnit(ctx context.Context, caller model.Caller, batchID uuid.UUID, studentID int64, quantity int, reason string) GrantOutcome {
	outcome := GrantOutcome{StudentID: studentID}

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		grant := &model.TicketGrant{
			BatchID:   &batchID,
			StudentID: studentID,
			Quantity:  quantity,
			GrantedBy: caller.ID,
			Type:      model.GrantWeeklyBulk,
			Reason:    reason,
		}
		if err := repos.Tickets().CreateGrant(ctx, grant); err != nil {
			return fmt.Errorf("create grant: %w", err)
		}

		var err error
		outcome.Before, outcome.After, err = repos.Tickets().AddClamped(ctx, studentID, quantity, model.MaxTickets)
		if err != nil {
			return fmt.Errorf("add tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		outcome.err = err
		outcome.Error = err.Error()
		outcome.Before, outcome.After = 0, 0
	}
	return outcome
}

// compensate удаляет записи пакета и списывает начисленное.
// Неудачный откат не скрывается: он логируется и попадает в результат.
func (s *TicketService) compensate(ctx context.Context, result *BulkGrantResult) {
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		_, err := repos.Tickets().DeleteGrantsByBatch(ctx, result.BatchID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to delete grant records of batch",
			zap.String("batch_id", result.BatchID.String()),
			zap.Error(err),
		)
		result.CompensationErrors = append(result.CompensationErrors, fmt.Sprintf("delete batch grants: %v", err))
	}

	for _, outcome := range result.Outcomes {
		delta := outcome.Applied()
		if delta <= 0 {
			continue
		}

		removed := 0
		err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			var err error
			removed, _, err = repos.Tickets().Revert(ctx, outcome.StudentID, delta)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to revert ticket grant",
				zap.String("batch_id", result.BatchID.String()),
				zap.Int64("student_id", outcome.StudentID),
				zap.Int("delta", delta),
				zap.Error(err),
			)
			result.CompensationErrors = append(result.CompensationErrors,
				fmt.Sprintf("revert student %d: %v", outcome.StudentID, err))
			continue
		}
		if removed < delta {
			// студент успел потратить тикеты пакета
			s.logger.Error("Ticket grant reverted only partially",
				zap.String("batch_id", result.BatchID.String()),
				zap.Int64("student_id", outcome.StudentID),
				zap.Int("delta", delta),
				zap.Int("removed", removed),
			)
			result.CompensationErrors = append(result.CompensationErrors,
				fmt.Sprintf("revert student %d: removed %d of %d tickets, the rest is already spent", outcome.StudentID, removed, delta))
		}
	}

	result.RolledBack = len(result.CompensationErrors) == 0
}

// Balance баланс студента; студент видит только свой
func (s *TicketService) Balance(ctx context.Context, caller model.Caller, studentID int64) (int, error) {
	if err := s.authorizeView(caller, studentID); err != nil {
		return 0, err
	}

	balance, err := s.store.Repos().Tickets().GetBalance(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Grants история выдач студента
func (s *TicketService) Grants(ctx context.Context, caller model.Caller, studentID int64) ([]*model.TicketGrant, error) {
	if err := s.authorizeView(caller, studentID); err != nil {
		return nil, err
	}

	grants, err := s.store.Repos().Tickets().ListGrants(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

func (s *TicketService) authorizeView(caller model.Caller, studentID int64) error {
	if err := caller.Authorize(model.CapViewTickets); err != nil {
		return err
	}
	if caller.Role == model.RoleStudent && caller.ID != studentID {
		return apperr.Forbidden("view tickets", "student %d cannot view tickets of %d", caller.ID, studentID)
	}
	return nil
}

func ensureStudent(ctx context.Context, repos repository.Repos, op string, studentID int64) error {
	student, err := repos.Users().GetByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return apperr.NotFound(op, "student %d not found", studentID)
	}
	if student.Role != model.RoleStudent {
		return apperr.Validation(op, "user %d is not a student", studentID)
	}
	return nil
}
