package event_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/event"
	"github.com/tradepulse/engine/core/queue"
)

func TestMemoryStore_AppendAndPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	first := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`{}`))
	second := event.NewEvent(event.TypeTaskFailed, "ai_analysis", json.RawMessage(`{}`))

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	err := store.Append(ctx, first)
	assert.ErrorIs(t, err, event.ErrEventExists)

	pending, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "pending events keep creation order")
	assert.Equal(t, second.ID, pending[1].ID)

	limited, err := store.PendingEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStore_DeliveryTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`{}`))
	require.NoError(t, store.Append(ctx, evt))

	require.NoError(t, store.MarkDelivered(ctx, evt.ID))

	stored, err := store.GetEvent(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDelivered, stored.Status)
	assert.NotNil(t, stored.DeliveredAt)

	pending, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, store.MarkDelivered(ctx, uuid.New()), event.ErrEventNotFound)
}

func TestMemoryStore_DeadLetter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`{}`))
	require.NoError(t, store.Append(ctx, evt))
	require.NoError(t, store.MarkDeadLettered(ctx, evt.ID, "target queue inactive"))

	stored, err := store.GetEvent(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDeadLettered, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "target queue inactive", *stored.FailureReason)

	dead, err := store.DeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, evt.ID, dead[0].ID)
}

func TestMemoryStore_IncrementRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`{}`))
	require.NoError(t, store.Append(ctx, evt))

	count, err := store.IncrementRetry(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(1), count)

	count, err = store.IncrementRetry(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(2), count)

	_, err = store.IncrementRetry(ctx, uuid.New())
	assert.ErrorIs(t, err, event.ErrEventNotFound)
}

func TestMemoryStore_MarkTriggerFired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	eventID := uuid.New()

	fired, err := store.MarkTriggerFired(ctx, eventID, "trigger-a")
	require.NoError(t, err)
	assert.True(t, fired, "first marker wins")

	fired, err = store.MarkTriggerFired(ctx, eventID, "trigger-a")
	require.NoError(t, err)
	assert.False(t, fired, "second marker for same pair is rejected")

	fired, err = store.MarkTriggerFired(ctx, eventID, "trigger-b")
	require.NoError(t, err)
	assert.True(t, fired, "different trigger is independent")

	fired, err = store.MarkTriggerFired(ctx, uuid.New(), "trigger-a")
	require.NoError(t, err)
	assert.True(t, fired, "different event is independent")
}

func TestMemoryStore_Triggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	low := event.Trigger{
		ID:          "low",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze",
		Priority:    queue.PriorityLow,
		IsActive:    true,
	}
	high := low
	high.ID = "high"
	high.Priority = queue.PriorityHigh

	inactive := low
	inactive.ID = "inactive"
	inactive.IsActive = false

	otherType := low
	otherType.ID = "other"
	otherType.EventType = event.TypeTaskFailed

	for _, trigger := range []event.Trigger{low, high, inactive, otherType} {
		require.NoError(t, store.UpsertTrigger(ctx, trigger))
	}

	active, err := store.ActiveTriggers(ctx, event.TypeTaskCompleted)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "high", active[0].ID, "higher priority first")
	assert.Equal(t, "low", active[1].ID)

	got, err := store.GetTrigger(ctx, "low")
	require.NoError(t, err)
	assert.Equal(t, queue.PriorityLow, got.Priority)

	_, err = store.GetTrigger(ctx, "missing")
	assert.ErrorIs(t, err, event.ErrTriggerNotFound)

	all, err := store.ListTriggers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
