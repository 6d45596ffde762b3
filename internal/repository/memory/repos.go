package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/google/uuid"
)

type userRepo repos

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.store.do(r.locking, func(st *state) error {
		if user, ok := st.users[id]; ok {
			cp := *user
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r userRepo) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	var out *model.User
	err := r.store.do(r.locking, func(st *state) error {
		for _, user := range st.users {
			if user.TelegramID != nil && *user.TelegramID == telegramID {
				cp := *user
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r userRepo) ListIDsByRole(_ context.Context, role model.Role) ([]int64, error) {
	var ids []int64
	err := r.store.do(r.locking, func(st *state) error {
		for id, user := range st.users {
			if user.Role == role {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

type slotRepo repos

func (r slotRepo) CreateIfAbsent(_ context.Context, slot *model.TimeSlot) (bool, error) {
	created := false
	err := r.store.do(r.locking, func(st *state) error {
		for _, existing := range st.slots {
			if existing.TeacherID == slot.TeacherID && existing.TimeLabel == slot.TimeLabel && sameDay(existing.SlotDate, slot.SlotDate) {
				return nil
			}
		}
		if slot.CurrentReservations < 0 || slot.CurrentReservations > slot.MaxCapacity {
			return apperr.Conflict("create slot", "reservations %d out of capacity %d", slot.CurrentReservations, slot.MaxCapacity)
		}
		slot.ID = st.id()
		slot.SlotDate = model.DateOnly(slot.SlotDate)
		slot.CreatedAt = r.store.now(st)
		cp := *slot
		st.slots[slot.ID] = &cp
		created = true
		return nil
	})
	return created, err
}

func (r slotRepo) GetByID(_ context.Context, id int64) (*model.TimeSlot, error) {
	var out *model.TimeSlot
	err := r.store.do(r.locking, func(st *state) error {
		if slot, ok := st.slots[id]; ok {
			cp := *slot
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r slotRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.TimeSlot, error) {
	return r.GetByID(ctx, id)
}

func (r slotRepo) LockTeacherDay(ctx context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error) {
	return r.ListByTeacherDate(ctx, teacherID, date)
}

func (r slotRepo) ListByTeacherDate(_ context.Context, teacherID int64, date time.Time) ([]*model.TimeSlot, error) {
	var slots []*model.TimeSlot
	err := r.store.do(r.locking, func(st *state) error {
		for _, slot := range st.slots {
			if slot.TeacherID == teacherID && sameDay(slot.SlotDate, date) {
				cp := *slot
				slots = append(slots, &cp)
			}
		}
		return nil
	})
	sort.Slice(slots, func(i, j int) bool { return slots[i].TimeLabel < slots[j].TimeLabel })
	return slots, err
}

func (r slotRepo) SetAvailable(_ context.Context, id int64, available bool) error {
	return r.store.do(r.locking, func(st *state) error {
		slot, ok := st.slots[id]
		if !ok {
			return apperr.NotFound("set slot availability", "slot %d not found", id)
		}
		slot.IsAvailable = available
		return nil
	})
}

func (r slotRepo) IncrementReservations(_ context.Context, id int64) (*model.TimeSlot, error) {
	var out *model.TimeSlot
	err := r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpIncrementSlot, id); err != nil {
			return opError("increment reservations", err)
		}
		slot, ok := st.slots[id]
		if !ok || slot.CurrentReservations >= slot.MaxCapacity {
			return apperr.New(apperr.ErrSlotFull, "increment reservations", "slot %d is full", id)
		}
		slot.CurrentReservations++
		slot.IsAvailable = slot.CurrentReservations < slot.MaxCapacity
		cp := *slot
		out = &cp
		return nil
	})
	return out, err
}

func (r slotRepo) DecrementReservations(_ context.Context, id int64) (*model.TimeSlot, error) {
	var out *model.TimeSlot
	err := r.store.do(r.locking, func(st *state) error {
		slot, ok := st.slots[id]
		if !ok || slot.CurrentReservations == 0 {
			return apperr.Conflict("decrement reservations", "slot %d has no reservations", id)
		}
		slot.CurrentReservations--
		slot.IsAvailable = true
		cp := *slot
		out = &cp
		return nil
	})
	return out, err
}

func (r slotRepo) BlockStartLabel(_ context.Context, teacherID int64, date time.Time, period model.SessionPeriod) (string, error) {
	label := ""
	err := r.store.do(r.locking, func(st *state) error {
		for _, slot := range st.slots {
			if slot.TeacherID != teacherID || slot.Period != period || !sameDay(slot.SlotDate, date) {
				continue
			}
			if label == "" || slot.TimeLabel < label {
				label = slot.TimeLabel
			}
		}
		if label == "" {
			return apperr.NotFound("get block start", "no slots for teacher %d on %s %s", teacherID, date.Format(model.DateLayout), period)
		}
		return nil
	})
	return label, err
}

type reservationRepo repos

func (r reservationRepo) Create(_ context.Context, reservation *model.Reservation) error {
	return r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpCreateReservation, reservation.SlotID); err != nil {
			return opError("create reservation", err)
		}
		if _, ok := st.slots[reservation.SlotID]; !ok {
			return apperr.NotFound("create reservation", "slot %d not found", reservation.SlotID)
		}
		for _, existing := range st.reservations {
			if existing.IsActive() && existing.StudentID == reservation.StudentID && existing.SlotID == reservation.SlotID {
				return apperr.Conflict("create reservation", "student %d already holds slot %d", reservation.StudentID, reservation.SlotID)
			}
		}
		reservation.ID = st.id()
		reservation.CreatedAt = r.store.now(st)
		reservation.UpdatedAt = reservation.CreatedAt
		cp := *reservation
		cp.Slot = nil
		st.reservations[reservation.ID] = &cp
		return nil
	})
}

func (r reservationRepo) GetByID(_ context.Context, id int64) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.store.do(r.locking, func(st *state) error {
		if reservation, ok := st.reservations[id]; ok {
			cp := *reservation
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r reservationRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r reservationRepo) ListByStudent(_ context.Context, studentID int64) ([]*model.Reservation, error) {
	var out []*model.Reservation
	err := r.store.do(r.locking, func(st *state) error {
		for _, reservation := range st.reservations {
			if reservation.StudentID == studentID {
				cp := *reservation
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (r reservationRepo) UpdateStatus(_ context.Context, id int64, status model.ReservationStatus) error {
	return r.store.do(r.locking, func(st *state) error {
		reservation, ok := st.reservations[id]
		if !ok {
			return apperr.NotFound("update reservation status", "reservation %d not found", id)
		}
		reservation.Status = status
		reservation.UpdatedAt = r.store.now(st)
		return nil
	})
}

func (r reservationRepo) QueuePosition(_ context.Context, reservation *model.Reservation, slot *model.TimeSlot) (int, error) {
	position := 1
	err := r.store.do(r.locking, func(st *state) error {
		for _, other := range st.reservations {
			if !other.IsActive() {
				continue
			}
			otherSlot, ok := st.slots[other.SlotID]
			if !ok || otherSlot.TeacherID != slot.TeacherID || otherSlot.Period != slot.Period || !sameDay(otherSlot.SlotDate, slot.SlotDate) {
				continue
			}
			if other.CreatedAt.Before(reservation.CreatedAt) ||
				(other.CreatedAt.Equal(reservation.CreatedAt) && other.ID < reservation.ID) {
				position++
			}
		}
		return nil
	})
	return position, err
}

type ticketRepo repos

func (r ticketRepo) GetBalance(_ context.Context, studentID int64) (int, error) {
	balance := 0
	err := r.store.do(r.locking, func(st *state) error {
		balance = st.balances[studentID]
		return nil
	})
	return balance, err
}

func (r ticketRepo) GetBalanceForUpdate(ctx context.Context, studentID int64) (int, error) {
	return r.GetBalance(ctx, studentID)
}

func (r ticketRepo) AddClamped(_ context.Context, studentID int64, quantity, ceiling int) (int, int, error) {
	var before, after int
	err := r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpAddTickets, studentID); err != nil {
			return opError("add tickets", err)
		}
		before = st.balances[studentID]
		after = before + quantity
		if after > ceiling {
			after = ceiling
		}
		st.balances[studentID] = after
		return nil
	})
	return before, after, err
}

func (r ticketRepo) Consume(_ context.Context, studentID int64, quantity int) (int, error) {
	after := 0
	err := r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpConsumeTickets, studentID); err != nil {
			return opError("consume tickets", err)
		}
		current := st.balances[studentID]
		if current < quantity {
			return apperr.New(apperr.ErrInsufficientBalance, "consume tickets", "student %d has fewer than %d tickets", studentID, quantity)
		}
		after = current - quantity
		st.balances[studentID] = after
		return nil
	})
	return after, err
}

func (r ticketRepo) Revert(_ context.Context, studentID int64, quantity int) (int, int, error) {
	removed, after := 0, 0
	err := r.store.do(r.locking, func(st *state) error {
		current, ok := st.balances[studentID]
		if !ok {
			return apperr.NotFound("revert tickets", "no balance for student %d", studentID)
		}
		after = current - quantity
		if after < 0 {
			after = 0
		}
		removed = current - after
		st.balances[studentID] = after
		return nil
	})
	return removed, after, err
}

func (r ticketRepo) CreateGrant(_ context.Context, grant *model.TicketGrant) error {
	return r.store.do(r.locking, func(st *state) error {
		if grant.Quantity <= 0 {
			return apperr.Conflict("create ticket grant", "quantity must be positive")
		}
		grant.ID = st.id()
		grant.CreatedAt = r.store.now(st)
		cp := *grant
		st.grants[grant.ID] = &cp
		return nil
	})
}

func (r ticketRepo) DeleteGrantsByBatch(_ context.Context, batchID uuid.UUID) (int64, error) {
	var deleted int64
	err := r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpDeleteGrants, 0); err != nil {
			return opError("delete ticket grants by batch", err)
		}
		for id, grant := range st.grants {
			if batchEqual(grant.BatchID, batchID) {
				delete(st.grants, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (r ticketRepo) ListGrants(_ context.Context, studentID int64) ([]*model.TicketGrant, error) {
	var out []*model.TicketGrant
	err := r.store.do(r.locking, func(st *state) error {
		for _, grant := range st.grants {
			if grant.StudentID == studentID {
				cp := *grant
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

type problemRepo repos

func (r problemRepo) Create(_ context.Context, problem *model.Problem) error {
	return r.store.do(r.locking, func(st *state) error {
		problem.ID = st.id()
		problem.CreatedAt = r.store.now(st)
		problem.UpdatedAt = problem.CreatedAt
		cp := *problem
		st.problems[problem.ID] = &cp
		return nil
	})
}

func (r problemRepo) GetByID(_ context.Context, id int64) (*model.Problem, error) {
	var out *model.Problem
	err := r.store.do(r.locking, func(st *state) error {
		if problem, ok := st.problems[id]; ok {
			cp := *problem
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r problemRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Problem, error) {
	return r.GetByID(ctx, id)
}

func (r problemRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*model.Problem, error) {
	var out []*model.Problem
	err := r.store.do(r.locking, func(st *state) error {
		for _, problem := range st.problems {
			if problem.Status == model.ProblemDraft && problem.ScheduledPublishAt != nil && !problem.ScheduledPublishAt.After(now) {
				cp := *problem
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].HasContent() != out[j].HasContent() {
			return out[i].HasContent()
		}
		if out[i].ScheduledPublishAt.Equal(*out[j].ScheduledPublishAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledPublishAt.Before(*out[j].ScheduledPublishAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r problemRepo) TransitionStatus(_ context.Context, id int64, from, to model.ProblemStatus, at time.Time) (bool, error) {
	changed := false
	err := r.store.do(r.locking, func(st *state) error {
		if err := r.store.fault(OpTransitionProblem, id); err != nil {
			return opError("transition problem status", err)
		}
		problem, ok := st.problems[id]
		if !ok || problem.Status != from {
			return nil
		}
		problem.Status = to
		if to == model.ProblemPublished {
			publishedAt := at
			problem.PublishedAt = &publishedAt
		}
		problem.UpdatedAt = at
		changed = true
		return nil
	})
	return changed, err
}

func (r problemRepo) InsertAudit(_ context.Context, audit *model.ProblemAudit) error {
	return r.store.do(r.locking, func(st *state) error {
		audit.ID = st.id()
		audit.CreatedAt = r.store.now(st)
		cp := *audit
		st.audit = append(st.audit, &cp)
		return nil
	})
}

func (r problemRepo) ListAudit(_ context.Context, problemID int64) ([]*model.ProblemAudit, error) {
	var out []*model.ProblemAudit
	err := r.store.do(r.locking, func(st *state) error {
		for _, audit := range st.audit {
			if audit.ProblemID == problemID {
				cp := *audit
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

type sessionRepo repos

func (r sessionRepo) Create(_ context.Context, session *model.Session) error {
	return r.store.do(r.locking, func(st *state) error {
		for _, existing := range st.sessions {
			if existing.ReservationID == session.ReservationID {
				return apperr.Conflict("create session", "reservation %d already has a session", session.ReservationID)
			}
		}
		session.ID = st.id()
		session.CreatedAt = r.store.now(st)
		session.UpdatedAt = session.CreatedAt
		cp := *session
		st.sessions[session.ID] = &cp
		return nil
	})
}

func (r sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	var out *model.Session
	err := r.store.do(r.locking, func(st *state) error {
		if session, ok := st.sessions[id]; ok {
			cp := *session
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r sessionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Session, error) {
	return r.GetByID(ctx, id)
}

func (r sessionRepo) ListByStudentProblem(_ context.Context, studentID, problemID int64) ([]*model.Session, error) {
	var out []*model.Session
	err := r.store.do(r.locking, func(st *state) error {
		for _, session := range st.sessions {
			if session.StudentID == studentID && session.ProblemID == problemID {
				cp := *session
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r sessionRepo) GetByReservation(_ context.Context, reservationID int64) (*model.Session, error) {
	var out *model.Session
	err := r.store.do(r.locking, func(st *state) error {
		for _, session := range st.sessions {
			if session.ReservationID == reservationID {
				cp := *session
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r sessionRepo) UpdateStatus(_ context.Context, id int64, status model.SessionStatus) error {
	return r.store.do(r.locking, func(st *state) error {
		session, ok := st.sessions[id]
		if !ok {
			return apperr.NotFound("update session status", "session %d not found", id)
		}
		session.Status = status
		session.UpdatedAt = r.store.now(st)
		return nil
	})
}

func (r sessionRepo) CountBlockingArchive(_ context.Context, problemID int64) (int, error) {
	count := 0
	err := r.store.do(r.locking, func(st *state) error {
		for _, session := range st.sessions {
			if session.ProblemID == problemID && session.Status.BlocksArchive() {
				count++
			}
		}
		return nil
	})
	return count, err
}
