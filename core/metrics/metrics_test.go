package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/tradepulse/engine/core/metrics"
	"github.com/tradepulse/engine/core/queue"
)

type recordingPublisher struct {
	results []queue.TaskResult
}

func (p *recordingPublisher) PublishResult(ctx context.Context, result queue.TaskResult) error {
	p.results = append(p.results, result)
	return nil
}

func TestCollector_PublishResultCountsAndForwards(t *testing.T) {
	t.Parallel()

	next := &recordingPublisher{}
	collector := metrics.NewCollector(next)

	result := queue.TaskResult{
		TaskID:   uuid.New(),
		Queue:    "data_fetcher",
		TaskType: "fetch_prices",
		Status:   queue.TaskStatusCompleted,
		Duration: 120 * time.Millisecond,
	}
	require.NoError(t, collector.PublishResult(context.Background(), result))
	require.NoError(t, collector.PublishResult(context.Background(), queue.TaskResult{
		TaskID:   uuid.New(),
		Queue:    "data_fetcher",
		TaskType: "fetch_prices",
		Status:   queue.TaskStatusFailed,
		Error:    "boom",
	}))

	assert.Len(t, next.results, 2, "results must be forwarded")

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["tradepulse_tasks_processed_total"])
	assert.True(t, names["tradepulse_task_duration_seconds"])
}

func TestCollector_NilNextPublisher(t *testing.T) {
	t.Parallel()

	collector := metrics.NewCollector(nil)
	assert.NoError(t, collector.PublishResult(context.Background(), queue.TaskResult{
		Queue:    "data_fetcher",
		TaskType: "fetch_prices",
		Status:   queue.TaskStatusCompleted,
	}))
}

func TestCollector_UpdateQueueDepth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	require.NoError(t, storage.UpsertQueue(ctx, &queue.QueueConfig{Name: "data_fetcher", IsActive: true}))

	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := enq.Enqueue(ctx, "data_fetcher", "fetch_prices", map[string]string{"symbol": "AAPL"})
		require.NoError(t, err)
	}

	collector := metrics.NewCollector(nil)
	require.NoError(t, collector.UpdateQueueDepth(ctx, storage))

	count, err := testutil.GatherAndCount(collector.Registry(), "tradepulse_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 5, count, "one series per status")
}
