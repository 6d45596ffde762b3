package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
)

type PgProblemRepository struct {
	db base.DBTX
}

func NewProblemRepository(db base.DBTX) *PgProblemRepository {
	return &PgProblemRepository{db: db}
}

const problemColumns = `id, author_id, title, content, status, scheduled_publish_at, preview_lead_hours, published_at, created_at, updated_at`

func scanProblem(row base.Scanner) (*model.Problem, error) {
	var problem model.Problem
	err := row.Scan(
		&problem.ID,
		&problem.AuthorID,
		&problem.Title,
		&problem.Content,
		&problem.Status,
		&problem.ScheduledPublishAt,
		&problem.PreviewLeadHours,
		&problem.PublishedAt,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &problem, nil
}

// Create создаёт задачу
func (r *PgProblemRepository) Create(ctx context.Context, problem *model.Problem) error {
	query := `
		INSERT INTO problems (author_id, title, content, status, scheduled_publish_at, preview_lead_hours)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		problem.AuthorID,
		problem.Title,
		problem.Content,
		problem.Status,
		problem.ScheduledPublishAt,
		problem.PreviewLeadHours,
	).Scan(&problem.ID, &problem.CreatedAt, &problem.UpdatedAt)

	if err != nil {
		return base.MapError("create problem", err)
	}

	return nil
}

// GetByID получает задачу по ID
func (r *PgProblemRepository) GetByID(ctx context.Context, id int64) (*model.Problem, error) {
	return r.getOne(ctx, "get problem by id", `SELECT `+problemColumns+` FROM problems WHERE id = $1`, id)
}

// GetByIDForUpdate получает задачу и блокирует строку
func (r *PgProblemRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Problem, error) {
	return r.getOne(ctx, "lock problem", `SELECT `+problemColumns+` FROM problems WHERE id = $1 FOR UPDATE`, id)
}

func (r *PgProblemRepository) getOne(ctx context.Context, op, query string, id int64) (*model.Problem, error) {
	problem, err := scanProblem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, base.MapError(op, err)
	}
	return problem, nil
}

// ListDue черновики с наступившим временем публикации.
// Пустые черновики идут в конце, чтобы не вытеснять заполненные из пачки.
func (r *PgProblemRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Problem, error) {
	query := `
		SELECT ` + problemColumns + `
		FROM problems
		WHERE status = 'draft'
		  AND scheduled_publish_at IS NOT NULL
		  AND scheduled_publish_at <= $1
		ORDER BY (btrim(title, E' \t\r\n') = '' OR btrim(content, E' \t\r\n') = ''), scheduled_publish_at, id
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, base.MapError("list due problems", err)
	}
	defer rows.Close()

	var problems []*model.Problem
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, base.MapError("scan problem", err)
		}
		problems = append(problems, problem)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError("list due problems", err)
	}
	return problems, nil
}

// TransitionStatus условный переход; false если статус уже сменил кто-то другой
func (r *PgProblemRepository) TransitionStatus(ctx context.Context, id int64, from, to model.ProblemStatus, at time.Time) (bool, error) {
	query := `
		UPDATE problems
		SET status = $3,
		    published_at = CASE WHEN $3 = 'published' THEN $4 ELSE published_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from, to, at)
	if err != nil {
		return false, base.MapError("transition problem status", err)
	}

	return tag.RowsAffected() == 1, nil
}

// InsertAudit пишет запись журнала публикаций
func (r *PgProblemRepository) InsertAudit(ctx context.Context, audit *model.ProblemAudit) error {
	query := `
		INSERT INTO problem_audit (problem_id, from_status, to_status, trigger, actor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		audit.ProblemID,
		audit.FromStatus,
		audit.ToStatus,
		audit.Trigger,
		audit.ActorID,
	).Scan(&audit.ID, &audit.CreatedAt)

	if err != nil {
		return base.MapError("insert problem audit", err)
	}

	return nil
}

// ListAudit журнал задачи по порядку
func (r *PgProblemRepository) ListAudit(ctx context.Context, problemID int64) ([]*model.ProblemAudit, error) {
	query := `
		SELECT id, problem_id, from_status, to_status, trigger, actor_id, created_at
		FROM problem_audit
		WHERE problem_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, base.MapError("list problem audit", err)
	}
	defer rows.Close()

	var entries []*model.ProblemAudit
	for rows.Next() {
		var audit model.ProblemAudit
		err := rows.Scan(
			&audit.ID,
			&audit.ProblemID,
			&audit.FromStatus,
			&audit.ToStatus,
			&audit.Trigger,
			&audit.ActorID,
			&audit.CreatedAt,
		)
		if err != nil {
			return nil, base.MapError("scan problem audit", err)
		}
		entries = append(entries, &audit)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError("list problem audit", err)
	}
	return entries, nil
}
