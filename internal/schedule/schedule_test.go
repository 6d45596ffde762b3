package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func TestComputeScenario(t *testing.T) {
	loc := seoul(t)
	blockStart := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)

	c, err := Compute(blockStart, 3, 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 9, 20, 0, 0, loc), c.ScheduledStartAt)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 50, 0, 0, loc), c.VisibleFrom)
	assert.False(t, c.CanShowProblem(time.Date(2024, 3, 1, 8, 49, 0, 0, loc)))
	assert.True(t, c.CanShowProblem(time.Date(2024, 3, 1, 8, 50, 0, 0, loc)))
}

func TestComputeOffsetIsExactlyTenMinutesPerPosition(t *testing.T) {
	blockStart := time.Date(2024, 3, 1, 14, 0, 0, 0, seoul(t))
	for pos := 1; pos <= 30; pos++ {
		for _, lead := range []time.Duration{0, time.Minute, 24 * time.Hour} {
			c, err := Compute(blockStart, pos, lead)
			require.NoError(t, err)
			assert.Equal(t, time.Duration(pos-1)*10*time.Minute, c.ScheduledStartAt.Sub(blockStart))
			assert.Equal(t, lead, c.ScheduledStartAt.Sub(c.VisibleFrom))
		}
	}
}

func TestComputeRejectsInvalidArguments(t *testing.T) {
	blockStart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := Compute(blockStart, 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Compute(blockStart, -4, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Compute(blockStart, 1, -time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCanShowProblemIsMonotonic(t *testing.T) {
	loc := seoul(t)
	c, err := Compute(time.Date(2024, 3, 1, 9, 0, 0, 0, loc), 2, 45*time.Minute)
	require.NoError(t, err)

	seen := false
	for now := c.VisibleFrom.Add(-2 * time.Hour); now.Before(c.ScheduledStartAt.Add(2 * time.Hour)); now = now.Add(time.Minute) {
		shown := c.CanShowProblem(now)
		if seen {
			assert.True(t, shown, "visibility flapped at %s", now)
		}
		seen = seen || shown
	}
	assert.True(t, seen)
}

func TestViewDurations(t *testing.T) {
	loc := seoul(t)
	c, err := Compute(time.Date(2024, 3, 1, 9, 0, 0, 0, loc), 3, 30*time.Minute)
	require.NoError(t, err)

	before := c.At(time.Date(2024, 3, 1, 8, 40, 0, 0, loc))
	assert.False(t, before.CanShowProblem)
	assert.False(t, before.IsLive)
	assert.Equal(t, 10*time.Minute, before.TimeUntilVisible)
	assert.Equal(t, 40*time.Minute, before.TimeUntilStart)

	after := c.At(time.Date(2024, 3, 1, 10, 0, 0, 0, loc))
	assert.True(t, after.CanShowProblem)
	assert.True(t, after.IsLive)
	assert.Zero(t, after.TimeUntilVisible)
	assert.Zero(t, after.TimeUntilStart)
}

func TestViewConvertsNowFromOtherZone(t *testing.T) {
	loc := seoul(t)
	c, err := Compute(time.Date(2024, 3, 1, 9, 0, 0, 0, loc), 1, 0)
	require.NoError(t, err)

	// 00:00 UTC == 09:00 KST
	v := c.At(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, v.IsLive)
	assert.True(t, v.CanShowProblem)

	v = c.At(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))
	assert.False(t, v.IsLive)
	assert.Equal(t, time.Minute, v.TimeUntilStart)
}
