package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
)

type PgSlotRepository struct {
	db base.DBTX
}

func NewSlotRepository(db base.DBTX) *PgSlotRepository {
	return &PgSlotRepository{db: db}
}

const slotColumns = `id, slot_date, time_label, teacher_id, session_period, max_capacity, current_reservations, is_available, created_at`

func scanSlot(row base.Scanner) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := row.Scan(
		&slot.ID,
		&slot.SlotDate,
		&slot.TimeLabel,
		&slot.TeacherID,
		&slot.Period,
		&slot.MaxCapacity,
		&slot.CurrentReservations,
		&slot.IsAvailable,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *PgSlotRepository) querySlots(ctx context.Context, op, query string, args ...any) ([]*model.TimeSlot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, base.MapError(op, err)
	}
	defer rows.Close()

	var slots []*model.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, base.MapError("scan slot", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, base.MapError(op, err)
	}
	return slots, nil
}

// CreateIfAbsent создаёт слот, дубликат по (дата, время, учитель) пропускается
func (r *PgSlotRepository) CreateIfAbsent(ctx context.Context, slot *model.TimeSlot) (bool, error) {
	query := `
		INSERT INTO time_slots (slot_date, time_label, teacher_id, session_period, max_capacity, current_reservations, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slot_date, time_label, teacher_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		model.DateOnly(slot.SlotDate),
		slot.TimeLabel,
		slot.TeacherID,
		slot.Period,
		slot.MaxCapacity,
		slot.CurrentReservations,
		slot.IsAvailable,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, base.MapError("create slot", err)
	}

	return true, nil
}

// GetByID получает слот по ID
func (r *PgSlotRepository) GetByID(ctx context.Context, id int64) (*model.TimeSlot, error) {
	return r.getOne(ctx, "get slot by id", `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, id)
}

// GetByIDForUpdate получает слот и блокирует строку
func (r *PgSlotRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.TimeSlot, error) {
	return r.getOne(ctx, "lock slot", `SELECT `+slotColumns+` FROM time_slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *PgSlotRepository) getOne(ctx context.Context, op, query string, id int64) (*model.TimeSlot, error) {
	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, base.MapError(op, err)
	}
	return slot, nil
}

// LockTeacherDay блокирует день учителя, чтобы подсчёт перерывов был согласован
func (r *PgSlotRepository) LockTeacherDay(ctx context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE teacher_id = $1 AND slot_date = $2
		ORDER BY time_label
		FOR UPDATE
	`
	return r.querySlots(ctx, "lock teacher day", query, teacherID, model.DateOnly(date))
}

// ListByTeacherDate получает слоты учителя за день
func (r *PgSlotRepository) ListByTeacherDate(ctx context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE teacher_id = $1 AND slot_date = $2
		ORDER BY time_label
	`
	return r.querySlots(ctx, "list slots by teacher", query, teacherID, model.DateOnly(date))
}

// SetAvailable открывает или закрывает слот
func (r *PgSlotRepository) SetAvailable(ctx context.Context, id int64, available bool) error {
	query := `UPDATE time_slots SET is_available = $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, available, id)
	if err != nil {
		return base.MapError("set slot availability", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.NotFound("set slot availability", "slot %d not found", id)
	}

	return nil
}

// IncrementReservations занимает одно место; CHECK в схеме не даёт превысить вместимость
func (r *PgSlotRepository) IncrementReservations(ctx context.Context, id int64) (*model.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET current_reservations = current_reservations + 1,
		    is_available = (current_reservations + 1 < max_capacity)
		WHERE id = $1 AND current_reservations < max_capacity
		RETURNING ` + slotColumns

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, apperr.New(apperr.ErrSlotFull, "increment reservations", "slot %d is full", id)
		}
		return nil, base.MapError("increment reservations", err)
	}
	return slot, nil
}

// DecrementReservations освобождает одно место и открывает слот
func (r *PgSlotRepository) DecrementReservations(ctx context.Context, id int64) (*model.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET current_reservations = current_reservations - 1,
		    is_available = TRUE
		WHERE id = $1 AND current_reservations > 0
		RETURNING ` + slotColumns

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, apperr.Conflict("decrement reservations", "slot %d has no reservations", id)
		}
		return nil, base.MapError("decrement reservations", err)
	}
	return slot, nil
}

// BlockStartLabel самая ранняя метка времени блока
func (r *PgSlotRepository) BlockStartLabel(ctx context.Context, teacherID int64, date time.Time, period model.SessionPeriod) (string, error) {
	query := `
		SELECT MIN(time_label)
		FROM time_slots
		WHERE teacher_id = $1 AND slot_date = $2 AND session_period = $3
	`

	var label *string
	err := r.db.QueryRow(ctx, query, teacherID, model.DateOnly(date), period).Scan(&label)
	if err != nil {
		return "", base.MapError("get block start", err)
	}

	if label == nil {
		return "", apperr.NotFound("get block start", "no slots for teacher %d on %s %s", teacherID, date.Format(model.DateLayout), period)
	}

	return *label, nil
}
