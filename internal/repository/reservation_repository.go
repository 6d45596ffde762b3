package repository

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
)

type PgReservationRepository struct {
	db base.DBTX
}

func NewReservationRepository(db base.DBTX) *PgReservationRepository {
	return &PgReservationRepository{db: db}
}

const reservationColumns = `id, student_id, slot_id, status, created_at, updated_at`

func scanReservation(row base.Scanner) (*model.Reservation, error) {
	var reservation model.Reservation
	err := row.Scan(
		&reservation.ID,
		&reservation.StudentID,
		&reservation.SlotID,
		&reservation.Status,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// Create создаёт новое бронирование
func (r *PgReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	query := `
		INSERT INTO reservations (student_id, slot_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		reservation.StudentID,
		reservation.SlotID,
		reservation.Status,
	).Scan(&reservation.ID, &reservation.CreatedAt, &reservation.UpdatedAt)

	if err != nil {
		return base.MapError("create reservation", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *PgReservationRepository) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.getOne(ctx, "get reservation by id", query, id)
}

// GetByIDForUpdate получает бронирование и блокирует строку
func (r *PgReservationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, "lock reservation", query, id)
}

func (r *PgReservationRepository) getOne(ctx context.Context, op, query string, id int64) (*model.Reservation, error) {
	reservation, err := scanReservation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, base.MapError(op, err)
	}
	return reservation, nil
}

// ListByStudent получает все бронирования студента
func (r *PgReservationRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, base.MapError("list reservations by student", err)
	}
	defer rows.Close()

	var reservations []*model.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, base.MapError("scan reservation", err)
		}
		reservations = append(reservations, reservation)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError("list reservations by student", err)
	}
	return reservations, nil
}

// UpdateStatus обновляет статус бронирования
func (r *PgReservationRepository) UpdateStatus(ctx context.Context, id int64, status model.ReservationStatus) error {
	query := `
		UPDATE reservations
		SET status = $1, updated_at = now()
		WHERE id = $2
	`

	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return base.MapError("update reservation status", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.NotFound("update reservation status", "reservation %d not found", id)
	}

	return nil
}

// QueuePosition считает активные бронирования блока, созданные раньше данного
func (r *PgReservationRepository) QueuePosition(ctx context.Context, reservation *model.Reservation, slot *model.TimeSlot) (int, error) {
	query := `
		SELECT COUNT(*) + 1
		FROM reservations r
		JOIN time_slots s ON s.id = r.slot_id
		WHERE s.teacher_id = $1
		  AND s.slot_date = $2
		  AND s.session_period = $3
		  AND r.status = 'active'
		  AND (r.created_at, r.id) < ($4, $5)
	`

	var position int
	err := r.db.QueryRow(
		ctx, query,
		slot.TeacherID,
		model.DateOnly(slot.SlotDate),
		slot.Period,
		reservation.CreatedAt,
		reservation.ID,
	).Scan(&position)

	if err != nil {
		return 0, base.MapError("get queue position", err)
	}

	return position, nil
}
