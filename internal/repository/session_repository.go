package repository

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
)

type PgSessionRepository struct {
	db base.DBTX
}

func NewSessionRepository(db base.DBTX) *PgSessionRepository {
	return &PgSessionRepository{db: db}
}

const sessionColumns = `id, reservation_id, problem_id, student_id, status, created_at, updated_at`

func scanSession(row base.Scanner) (*model.Session, error) {
	var session model.Session
	err := row.Scan(
		&session.ID,
		&session.ReservationID,
		&session.ProblemID,
		&session.StudentID,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create создаёт занятие; на бронирование допускается одно занятие
func (r *PgSessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO mentoring_sessions (reservation_id, problem_id, student_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		session.ReservationID,
		session.ProblemID,
		session.StudentID,
		session.Status,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return base.MapError("create session", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *PgSessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	return r.getOne(ctx, "get session by id", `SELECT `+sessionColumns+` FROM mentoring_sessions WHERE id = $1`, id)
}

func (r *PgSessionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	return r.getOne(ctx, "lock session", `SELECT `+sessionColumns+` FROM mentoring_sessions WHERE id = $1 FOR UPDATE`, id)
}

// GetByReservation занятие по бронированию
func (r *PgSessionRepository) GetByReservation(ctx context.Context, reservationID int64) (*model.Session, error) {
	return r.getOne(ctx, "get session by reservation", `SELECT `+sessionColumns+` FROM mentoring_sessions WHERE reservation_id = $1`, reservationID)
}

func (r *PgSessionRepository) getOne(ctx context.Context, op, query string, id int64) (*model.Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, base.MapError(op, err)
	}
	return session, nil
}

// ListByStudentProblem занятия студента по задаче
func (r *PgSessionRepository) ListByStudentProblem(ctx context.Context, studentID, problemID int64) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM mentoring_sessions WHERE student_id = $1 AND problem_id = $2 ORDER BY id`

	rows, err := r.db.Query(ctx, query, studentID, problemID)
	if err != nil {
		return nil, base.MapError("list sessions by student", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, base.MapError("scan session", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError("list sessions by student", err)
	}
	return sessions, nil
}

// UpdateStatus обновляет статус занятия
func (r *PgSessionRepository) UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	query := `
		UPDATE mentoring_sessions
		SET status = $1, updated_at = now()
		WHERE id = $2
	`

	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return base.MapError("update session status", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.NotFound("update session status", "session %d not found", id)
	}

	return nil
}

// CountBlockingArchive занятия по задаче, которые ещё идут или ждут отзыва
func (r *PgSessionRepository) CountBlockingArchive(ctx context.Context, problemID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM mentoring_sessions
		WHERE problem_id = $1 AND status IN ('active', 'feedback_pending')
	`

	var count int
	if err := r.db.QueryRow(ctx, query, problemID).Scan(&count); err != nil {
		return 0, base.MapError("count blocking sessions", err)
	}
	return count, nil
}
