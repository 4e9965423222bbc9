package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/queue"
)

func newStorageWithQueue(t *testing.T, name string) *queue.MemoryStorage {
	t.Helper()
	storage := queue.NewMemoryStorage()
	require.NoError(t, storage.UpsertQueue(context.Background(), &queue.QueueConfig{
		Name:     name,
		IsActive: true,
	}))
	return storage
}

func newTask(queueName string, priority queue.Priority, scheduledAt time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskType:    "fetch_prices",
		Priority:    priority,
		Status:      queue.TaskStatusPending,
		MaxRetries:  3,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
}

func TestMemoryStorage_ClaimTask_PriorityThenFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	base := time.Now().Add(-time.Minute)
	lowEarly := newTask("data_fetcher", queue.PriorityLow, base)
	highLate := newTask("data_fetcher", queue.PriorityHigh, base.Add(10*time.Second))
	highEarly := newTask("data_fetcher", queue.PriorityHigh, base.Add(5*time.Second))

	for _, task := range []*queue.Task{lowEarly, highLate, highEarly} {
		require.NoError(t, storage.CreateTask(ctx, task))
	}

	first, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, highEarly.ID, first.ID, "highest priority, earliest scheduled wins")
	assert.Equal(t, queue.TaskStatusRunning, first.Status)
	assert.NotNil(t, first.StartedAt)

	second, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, highLate.ID, second.ID)

	third, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, lowEarly.ID, third.ID)

	_, err = storage.ClaimTask(ctx, "data_fetcher")
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestMemoryStorage_ClaimTask_FutureScheduleNotEligible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	future := newTask("data_fetcher", queue.PriorityMax, time.Now().Add(time.Hour))
	require.NoError(t, storage.CreateTask(ctx, future))

	_, err := storage.ClaimTask(ctx, "data_fetcher")
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestMemoryStorage_ClaimTask_Dependencies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	dep := newTask("data_fetcher", queue.PriorityLow, time.Now().Add(-time.Minute))
	dependent := newTask("data_fetcher", queue.PriorityMax, time.Now().Add(-time.Minute))
	dependent.Dependencies = []uuid.UUID{dep.ID}

	require.NoError(t, storage.CreateTask(ctx, dep))
	require.NoError(t, storage.CreateTask(ctx, dependent))

	// The dependency is claimed first despite its lower priority.
	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, dep.ID, claimed.ID)

	// Dependent stays ineligible while the dependency is running.
	_, err = storage.ClaimTask(ctx, "data_fetcher")
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	require.NoError(t, storage.CompleteTask(ctx, dep.ID, time.Second))

	claimed, err = storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, dependent.ID, claimed.ID)
}

func TestMemoryStorage_ClaimTask_UnknownDependencyBlocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	task := newTask("data_fetcher", queue.PriorityMax, time.Now().Add(-time.Minute))
	task.Dependencies = []uuid.UUID{uuid.New()}
	require.NoError(t, storage.CreateTask(ctx, task))

	_, err := storage.ClaimTask(ctx, "data_fetcher")
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestMemoryStorage_RetryLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	task := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	task.MaxRetries = 1
	require.NoError(t, storage.CreateTask(ctx, task))

	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)

	// Backoff in the future keeps the task out of reach.
	require.NoError(t, storage.RetryTask(ctx, claimed.ID, "transient", time.Now().Add(time.Hour)))

	stored, err := storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusRetrying, stored.Status)
	assert.Equal(t, int8(1), stored.RetryCount)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "transient", *stored.ErrorMessage)
	assert.Nil(t, stored.StartedAt)

	_, err = storage.ClaimTask(ctx, "data_fetcher")
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	// An elapsed backoff makes the retrying task claimable again.
	storageElapsed := newStorageWithQueue(t, "data_fetcher")
	retry := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	retry.MaxRetries = 2
	require.NoError(t, storageElapsed.CreateTask(ctx, retry))

	claimed, err = storageElapsed.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NoError(t, storageElapsed.RetryTask(ctx, claimed.ID, "transient", time.Now().Add(-time.Second)))

	claimed, err = storageElapsed.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, retry.ID, claimed.ID)
}

func TestMemoryStorage_RetriedTaskReadmittedAsPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	retried := newTask("data_fetcher", queue.PriorityLow, time.Now().Add(-time.Minute))
	require.NoError(t, storage.CreateTask(ctx, retried))

	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NoError(t, storage.RetryTask(ctx, claimed.ID, "transient", time.Now().Add(-time.Second)))

	// A higher-priority task wins the next claim, but the retried task's
	// elapsed backoff already re-admitted it as pending.
	urgent := newTask("data_fetcher", queue.PriorityHigh, time.Now().Add(-time.Minute))
	require.NoError(t, storage.CreateTask(ctx, urgent))

	claimed, err = storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.Equal(t, urgent.ID, claimed.ID)

	stored, err := storage.GetTask(ctx, retried.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
}

func TestMemoryStorage_RetryBudgetIsHardBound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	task := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	task.MaxRetries = 0
	require.NoError(t, storage.CreateTask(ctx, task))

	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)

	err = storage.RetryTask(ctx, claimed.ID, "transient", time.Now())
	assert.ErrorIs(t, err, queue.ErrInvalidTransition)
}

func TestMemoryStorage_ForwardOnlyTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	task := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	require.NoError(t, storage.CreateTask(ctx, task))

	// Pending tasks cannot complete or retry without being claimed first.
	assert.ErrorIs(t, storage.CompleteTask(ctx, task.ID, time.Second), queue.ErrInvalidTransition)
	assert.ErrorIs(t, storage.RetryTask(ctx, task.ID, "x", time.Now()), queue.ErrInvalidTransition)

	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NoError(t, storage.CompleteTask(ctx, claimed.ID, time.Second))

	// A completed task never regresses.
	assert.ErrorIs(t, storage.FailTask(ctx, task.ID, "x", time.Second), queue.ErrInvalidTransition)
	assert.ErrorIs(t, storage.CompleteTask(ctx, task.ID, time.Second), queue.ErrInvalidTransition)

	assert.ErrorIs(t, storage.CompleteTask(ctx, uuid.New(), time.Second), queue.ErrTaskNotFound)
}

func TestMemoryStorage_ClearCompletedKeepsReferencedDependencies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	done := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	orphan := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	pending := newTask("data_fetcher", queue.PriorityMin, time.Now().Add(-time.Minute))
	pending.Dependencies = []uuid.UUID{done.ID}

	for _, task := range []*queue.Task{done, orphan, pending} {
		require.NoError(t, storage.CreateTask(ctx, task))
	}

	for i := 0; i < 2; i++ {
		claimed, err := storage.ClaimTask(ctx, "data_fetcher")
		require.NoError(t, err)
		require.NoError(t, storage.CompleteTask(ctx, claimed.ID, time.Second))
	}

	// done and orphan are completed; pending still references done.
	removed, err := storage.ClearCompleted(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = storage.GetTask(ctx, done.ID)
	assert.NoError(t, err, "dependency of a live task must survive")
	_, err = storage.GetTask(ctx, orphan.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestMemoryStorage_RequeueStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	task := newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))
	require.NoError(t, storage.CreateTask(ctx, task))

	_, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)

	// Fresh running tasks are untouched.
	requeued, err := storage.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, requeued)

	time.Sleep(10 * time.Millisecond)

	requeued, err = storage.RequeueStale(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)

	stored, err := storage.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
	assert.Nil(t, stored.StartedAt)
}

func TestMemoryStorage_QueueStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newStorageWithQueue(t, "data_fetcher")

	_, err := storage.QueueStats(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, storage.CreateTask(ctx, newTask("data_fetcher", queue.PriorityMedium, time.Now().Add(-time.Minute))))
	}

	claimed, err := storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NoError(t, storage.CompleteTask(ctx, claimed.ID, 100*time.Millisecond))

	claimed, err = storage.ClaimTask(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NoError(t, storage.FailTask(ctx, claimed.ID, "boom", time.Second))

	stats, err := storage.QueueStats(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 100*time.Millisecond, stats.AvgDuration)
}
