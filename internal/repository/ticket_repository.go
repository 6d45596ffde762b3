package repository

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
	"github.com/google/uuid"
)

type PgTicketRepository struct {
	db base.DBTX
}

func NewTicketRepository(db base.DBTX) *PgTicketRepository {
	return &PgTicketRepository{db: db}
}

// GetBalance текущий баланс; 0 если студенту ещё ничего не выдавали
func (r *PgTicketRepository) GetBalance(ctx context.Context, studentID int64) (int, error) {
	return r.balance(ctx, "get ticket balance", `SELECT current_tickets FROM ticket_balances WHERE student_id = $1`, studentID)
}

// GetBalanceForUpdate баланс с блокировкой строки
func (r *PgTicketRepository) GetBalanceForUpdate(ctx context.Context, studentID int64) (int, error) {
	return r.balance(ctx, "lock ticket balance", `SELECT current_tickets FROM ticket_balances WHERE student_id = $1 FOR UPDATE`, studentID)
}

func (r *PgTicketRepository) balance(ctx context.Context, op, query string, studentID int64) (int, error) {
	var tickets int
	err := r.db.QueryRow(ctx, query, studentID).Scan(&tickets)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, nil
		}
		return 0, base.MapError(op, err)
	}
	return tickets, nil
}

// AddClamped начисляет тикеты с потолком ceiling
func (r *PgTicketRepository) AddClamped(ctx context.Context, studentID int64, quantity, ceiling int) (int, int, error) {
	ensure := `
		INSERT INTO ticket_balances (student_id, current_tickets)
		VALUES ($1, 0)
		ON CONFLICT (student_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, ensure, studentID); err != nil {
		return 0, 0, base.MapError("ensure ticket balance", err)
	}

	before, err := r.GetBalanceForUpdate(ctx, studentID)
	if err != nil {
		return 0, 0, err
	}

	update := `
		UPDATE ticket_balances
		SET current_tickets = LEAST(current_tickets + $2, $3), updated_at = now()
		WHERE student_id = $1
		RETURNING current_tickets
	`

	var after int
	if err := r.db.QueryRow(ctx, update, studentID, quantity, ceiling).Scan(&after); err != nil {
		return 0, 0, base.MapError("add tickets", err)
	}

	return before, after, nil
}

// Consume списывает тикеты, не допуская отрицательного баланса
func (r *PgTicketRepository) Consume(ctx context.Context, studentID int64, quantity int) (int, error) {
	query := `
		UPDATE ticket_balances
		SET current_tickets = current_tickets - $2, updated_at = now()
		WHERE student_id = $1 AND current_tickets >= $2
		RETURNING current_tickets
	`

	var after int
	err := r.db.QueryRow(ctx, query, studentID, quantity).Scan(&after)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, apperr.New(apperr.ErrInsufficientBalance, "consume tickets", "student %d has fewer than %d tickets", studentID, quantity)
		}
		return 0, base.MapError("consume tickets", err)
	}

	return after, nil
}

// Revert снимает ранее начисленные тикеты при откате массовой выдачи.
// Возвращает сколько реально снято: потраченные тикеты не списываются.
func (r *PgTicketRepository) Revert(ctx context.Context, studentID int64, quantity int) (int, int, error) {
	query := `
		UPDATE ticket_balances AS b
		SET current_tickets = GREATEST(b.current_tickets - $2, 0), updated_at = now()
		FROM (
			SELECT student_id, current_tickets
			FROM ticket_balances
			WHERE student_id = $1
			FOR UPDATE
		) AS old
		WHERE b.student_id = old.student_id
		RETURNING old.current_tickets, b.current_tickets
	`

	var before, after int
	err := r.db.QueryRow(ctx, query, studentID, quantity).Scan(&before, &after)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, 0, apperr.NotFound("revert tickets", "no balance for student %d", studentID)
		}
		return 0, 0, base.MapError("revert tickets", err)
	}

	return before - after, after, nil
}

// CreateGrant записывает факт выдачи
func (r *PgTicketRepository) CreateGrant(ctx context.Context, grant *model.TicketGrant) error {
	query := `
		INSERT INTO ticket_grants (batch_id, student_id, quantity, granted_by, grant_type, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		grant.BatchID,
		grant.StudentID,
		grant.Quantity,
		grant.GrantedBy,
		grant.Type,
		grant.Reason,
	).Scan(&grant.ID, &grant.CreatedAt)

	if err != nil {
		return base.MapError("create ticket grant", err)
	}

	return nil
}

// DeleteGrantsByBatch компенсирующее удаление записей массовой выдачи
func (r *PgTicketRepository) DeleteGrantsByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM ticket_grants WHERE batch_id = $1`, batchID)
	if err != nil {
		return 0, base.MapError("delete ticket grants by batch", err)
	}
	return tag.RowsAffected(), nil
}

// ListGrants история выдач студента, новые сверху
func (r *PgTicketRepository) ListGrants(ctx context.Context, studentID int64) ([]*model.TicketGrant, error) {
	query := `
		SELECT id, batch_id, student_id, quantity, granted_by, grant_type, reason, created_at
		FROM ticket_grants
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, base.MapError("list ticket grants", err)
	}
	defer rows.Close()

	var grants []*model.TicketGrant
	for rows.Next() {
		var grant model.TicketGrant
		err := rows.Scan(
			&grant.ID,
			&grant.BatchID,
			&grant.StudentID,
			&grant.Quantity,
			&grant.GrantedBy,
			&grant.Type,
			&grant.Reason,
			&grant.CreatedAt,
		)
		if err != nil {
			return nil, base.MapError("scan ticket grant", err)
		}
		grants = append(grants, &grant)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError("list ticket grants", err)
	}
	return grants, nil
}
