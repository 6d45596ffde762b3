package model

import (
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		role    Role
		allowed []Capability
		denied  []Capability
	}{
		{
			role:    RoleStudent,
			allowed: []Capability{CapBook, CapCancel, CapViewSlots, CapViewTickets, CapViewSchedule},
			denied:  []Capability{CapManageSlots, CapRefund, CapGrantTickets, CapBulkGrant, CapManageProblem, CapRunPublish},
		},
		{
			role:    RoleTeacher,
			allowed: []Capability{CapManageSlots, CapRefund, CapGrantTickets, CapManageProblem},
			denied:  []Capability{CapBook, CapBulkGrant, CapRunPublish},
		},
		{
			role:    RoleAdmin,
			allowed: []Capability{CapManageSlots, CapGrantTickets, CapBulkGrant, CapRunPublish, CapRefund},
			denied:  []Capability{CapBook},
		},
		{
			role:   "owner",
			denied: []Capability{CapViewSlots, CapViewSchedule},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			caller := Caller{ID: 7, Role: tt.role}
			for _, capability := range tt.allowed {
				assert.NoError(t, caller.Authorize(capability), capability)
			}
			for _, capability := range tt.denied {
				assert.ErrorIs(t, caller.Authorize(capability), apperr.ErrForbidden, capability)
			}
		})
	}
}

func TestSystemCallerRunsBackgroundJobs(t *testing.T) {
	assert.NoError(t, System.Authorize(CapRunPublish))
	assert.NoError(t, System.Authorize(CapBulkGrant))
}

func TestSlotStates(t *testing.T) {
	open := TimeSlot{MaxCapacity: 1, IsAvailable: true}
	assert.False(t, open.IsBreak())
	assert.False(t, open.IsFull())

	onBreak := TimeSlot{MaxCapacity: 1, IsAvailable: false}
	assert.True(t, onBreak.IsBreak())
	assert.True(t, onBreak.IsFull())

	booked := TimeSlot{MaxCapacity: 1, CurrentReservations: 1, IsAvailable: false}
	assert.False(t, booked.IsBreak())
	assert.True(t, booked.IsFull())
}

func TestCivilTime(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := CivilTime(date, "14:30", seoul)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 30, 0, 0, seoul), got)
	assert.Equal(t, time.Date(2024, 3, 1, 5, 30, 0, 0, time.UTC), got.UTC())

	_, err = CivilTime(date, "2pm", seoul)
	assert.Error(t, err)

	assert.Equal(t, date, DateOnly(time.Date(2024, 3, 1, 23, 59, 0, 0, seoul)))
}

func TestProblemHelpers(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	p := Problem{Title: "  ", Content: "body", PreviewLeadHours: 2}
	assert.False(t, p.HasContent())
	p.Title = "Graphs"
	assert.True(t, p.HasContent())

	assert.True(t, p.DueAt(now))
	p.ScheduledPublishAt = &later
	assert.False(t, p.DueAt(now))
	assert.True(t, p.DueAt(later))

	assert.Equal(t, 2*time.Hour, p.PreviewLead())
}

func TestSessionTransitions(t *testing.T) {
	assert.True(t, SessionScheduled.CanMoveTo(SessionActive))
	assert.True(t, SessionActive.CanMoveTo(SessionFeedbackPending))
	assert.True(t, SessionFeedbackPending.CanMoveTo(SessionCompleted))
	assert.False(t, SessionScheduled.CanMoveTo(SessionCompleted))
	assert.False(t, SessionCompleted.CanMoveTo(SessionActive))
	assert.False(t, SessionCancelled.CanMoveTo(SessionScheduled))

	assert.True(t, SessionActive.BlocksArchive())
	assert.True(t, SessionFeedbackPending.BlocksArchive())
	assert.False(t, SessionScheduled.BlocksArchive())
	assert.False(t, SessionCompleted.BlocksArchive())
}

func TestClampTickets(t *testing.T) {
	assert.Equal(t, 0, ClampTickets(-3))
	assert.Equal(t, 5, ClampTickets(5))
	assert.Equal(t, MaxTickets, ClampTickets(14))
}
