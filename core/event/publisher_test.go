package event_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/event"
	"github.com/tradepulse/engine/core/queue"
)

type countingWaker struct {
	wakes atomic.Int32
}

func (w *countingWaker) Wake() { w.wakes.Add(1) }

func TestTaskResultPublisher_PublishResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	waker := &countingWaker{}

	publisher, err := event.NewTaskResultPublisher(store, waker)
	require.NoError(t, err)

	taskID := uuid.New()
	require.NoError(t, publisher.PublishResult(ctx, queue.TaskResult{
		TaskID:      taskID,
		Queue:       "data_fetcher",
		TaskType:    "fetch_news",
		Status:      queue.TaskStatusCompleted,
		Duration:    1500 * time.Millisecond,
		CompletedAt: time.Now(),
	}))

	require.NoError(t, publisher.PublishResult(ctx, queue.TaskResult{
		TaskID:   uuid.New(),
		Queue:    "ai_analysis",
		TaskType: "analyze_news",
		Status:   queue.TaskStatusFailed,
		Error:    "model unavailable",
	}))

	pending, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	completed := pending[0]
	assert.Equal(t, event.TypeTaskCompleted, completed.Type)
	assert.Equal(t, "data_fetcher", completed.SourceQueue)
	assert.Equal(t, event.StatusPending, completed.Status)

	var payload event.TaskEventPayload
	require.NoError(t, json.Unmarshal(completed.Payload, &payload))
	assert.Equal(t, taskID, payload.TaskID)
	assert.Equal(t, "fetch_news", payload.TaskType)
	assert.Equal(t, int64(1500), payload.DurationMS)

	failed := pending[1]
	assert.Equal(t, event.TypeTaskFailed, failed.Type)

	var failedPayload event.TaskEventPayload
	require.NoError(t, json.Unmarshal(failed.Payload, &failedPayload))
	assert.Equal(t, "model unavailable", failedPayload.Error)

	assert.Equal(t, int32(2), waker.wakes.Load())
}

func TestNewTaskResultPublisher_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := event.NewTaskResultPublisher(nil, nil)
	assert.ErrorIs(t, err, event.ErrStoreNil)
}

func TestTaskResultPublisher_NilWaker(t *testing.T) {
	t.Parallel()

	store := event.NewMemoryStore()
	publisher, err := event.NewTaskResultPublisher(store, nil)
	require.NoError(t, err)

	require.NoError(t, publisher.PublishResult(context.Background(), queue.TaskResult{
		TaskID:   uuid.New(),
		Queue:    "data_fetcher",
		TaskType: "fetch_news",
		Status:   queue.TaskStatusCompleted,
	}))
}
