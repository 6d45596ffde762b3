package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueues(t *testing.T) {
	assert.Equal(t, "reservation.created", ReservationCreatedEvent{}.Queue())
	assert.Equal(t, "reservation.cancelled", ReservationCancelledEvent{}.Queue())
	assert.Equal(t, "problem.published", ProblemPublishedEvent{}.Queue())
	assert.Equal(t, "tickets.granted", TicketsGrantedEvent{}.Queue())
}

func TestReservationCreatedEventJSON(t *testing.T) {
	event := ReservationCreatedEvent{
		ReservationID: 7,
		StudentID:     3,
		SlotID:        11,
		TeacherID:     2,
		SlotDate:      "2024-03-01",
		TimeLabel:     "09:20",
		TicketsLeft:   4,
		CreatedAt:     time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.EqualValues(t, 7, decoded["reservation_id"])
	assert.Equal(t, "09:20", decoded["time_label"])
	assert.EqualValues(t, 4, decoded["tickets_left"])
}

func TestTicketsGrantedEventOmitsEmptyBatch(t *testing.T) {
	body, err := json.Marshal(TicketsGrantedEvent{GrantType: "individual", Quantity: 2})
	require.NoError(t, err)
	assert.NotContains(t, string(body), "batch_id")
}

func TestRecorder(t *testing.T) {
	var rec Recorder
	require.NoError(t, rec.Publish(context.Background(), ProblemPublishedEvent{ProblemID: 1}))
	require.NoError(t, rec.Publish(context.Background(), ProblemPublishedEvent{ProblemID: 2}))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[1].(ProblemPublishedEvent).ProblemID)
}
