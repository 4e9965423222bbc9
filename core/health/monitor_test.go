package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/health"
	"github.com/tradepulse/engine/core/queue"
)

type stubHistory struct {
	cycles map[string][]queue.CycleRecord
}

func (s *stubHistory) RecentCycles(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error) {
	cycles := s.cycles[queueName]
	if limit > 0 && len(cycles) > limit {
		cycles = cycles[:limit]
	}
	return cycles, nil
}

type stubHeartbeat struct {
	last time.Time
}

func (s *stubHeartbeat) LastHeartbeat(ctx context.Context) (time.Time, error) {
	return s.last, nil
}

func cycle(queueName string, succeeded, failed int) queue.CycleRecord {
	return queue.CycleRecord{
		ID:             uuid.New(),
		Queue:          queueName,
		TasksAttempted: succeeded + failed,
		TasksSucceeded: succeeded,
		TasksFailed:    failed,
	}
}

func newQueueRepo(t *testing.T, names ...string) *queue.MemoryStorage {
	t.Helper()
	storage := queue.NewMemoryStorage()
	for _, name := range names {
		require.NoError(t, storage.UpsertQueue(context.Background(), &queue.QueueConfig{
			Name:     name,
			IsActive: true,
		}))
	}
	return storage
}

func TestMonitor_FailureRateThresholds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{
		"healthy":  {cycle("healthy", 10, 0)},
		"warning":  {cycle("warning", 6, 4)},
		"critical": {cycle("critical", 2, 8)},
	}}
	repo := newQueueRepo(t, "healthy", "warning", "critical")

	monitor, err := health.NewMonitor(store, history, repo,
		health.WithFailureRateThresholds(0.3, 0.7),
	)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	tests := []struct {
		queue string
		want  health.Status
	}{
		{"healthy", health.StatusHealthy},
		{"warning", health.StatusWarning},
		{"critical", health.StatusCritical},
	}
	for _, tt := range tests {
		check, err := store.LatestHealth(ctx, tt.queue)
		require.NoError(t, err)
		assert.Equal(t, tt.want, check.Status, "queue %s", tt.queue)
	}
}

func TestMonitor_NoHistoryIsUnknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{
		// No cycles at all for one queue, only empty drain cycles for the
		// other: neither carries evidence of health.
		"idle": {cycle("idle", 0, 0), cycle("idle", 0, 0)},
	}}
	repo := newQueueRepo(t, "fresh", "idle")

	monitor, err := health.NewMonitor(store, history, repo)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	for _, name := range []string{"fresh", "idle"} {
		check, err := store.LatestHealth(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, health.StatusUnknown, check.Status, "queue %s", name)
		assert.Contains(t, check.Details, "no task executions")
		assert.Nil(t, check.LastSuccessAt)
	}
}

func TestMonitor_RecordsLastSuccessAndLatency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)

	older := cycle("data_fetcher", 3, 0)
	older.EndedAt = time.Now().Add(-time.Hour)
	newest := cycle("data_fetcher", 0, 1)
	newest.EndedAt = time.Now().Add(-time.Minute)

	history := &stubHistory{cycles: map[string][]queue.CycleRecord{
		// Newest first: the latest cycle failed, the one before succeeded.
		"data_fetcher": {newest, older},
	}}
	repo := newQueueRepo(t, "data_fetcher")

	monitor, err := health.NewMonitor(store, history, repo)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	check, err := store.LatestHealth(ctx, "data_fetcher")
	require.NoError(t, err)
	require.NotNil(t, check.LastSuccessAt)
	assert.WithinDuration(t, older.EndedAt, *check.LastSuccessAt, time.Second)
	assert.GreaterOrEqual(t, check.ResponseTimeMS, int64(0))
}

func TestMonitor_ConsecutiveFailureCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{
		// Newest first: two failing cycles, then a successful one.
		"data_fetcher": {
			cycle("data_fetcher", 0, 1),
			cycle("data_fetcher", 0, 1),
			cycle("data_fetcher", 1, 0),
			cycle("data_fetcher", 0, 1),
		},
	}}
	repo := newQueueRepo(t, "data_fetcher")

	monitor, err := health.NewMonitor(store, history, repo)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	check, err := store.LatestHealth(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, 2, check.ConsecutiveFailures)
	assert.InDelta(t, 0.75, check.FailureRate, 0.001)
}

func TestMonitor_BreakerStateOverridesRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{
		"data_fetcher": {cycle("data_fetcher", 10, 0)},
	}}
	repo := newQueueRepo(t, "data_fetcher")

	gate := health.NewBreakerGate(1, time.Minute)
	done, err := gate.Allow("data_fetcher")
	require.NoError(t, err)
	done(false) // opens the breaker

	monitor, err := health.NewMonitor(store, history, repo,
		health.WithBreakerGate(gate),
	)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	check, err := store.LatestHealth(ctx, "data_fetcher")
	require.NoError(t, err)
	assert.Equal(t, health.StatusCritical, check.Status)
	assert.Contains(t, check.Details, "circuit breaker open")
}

func TestMonitor_StaleHeartbeatIsCritical(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{}}
	repo := newQueueRepo(t)

	heartbeat := &stubHeartbeat{last: time.Now().Add(-10 * time.Minute)}

	monitor, err := health.NewMonitor(store, history, repo,
		health.WithHeartbeatSource(heartbeat, time.Minute),
	)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	check, err := store.LatestHealth(ctx, health.CoordinatorComponent)
	require.NoError(t, err)
	assert.Equal(t, health.StatusCritical, check.Status)
	assert.Contains(t, check.Details, "stale")

	// A fresh heartbeat recovers.
	heartbeat.last = time.Now()
	monitor.CheckOnce(ctx)

	check, err = store.LatestHealth(ctx, health.CoordinatorComponent)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, check.Status)
}

func TestMonitor_NoHeartbeatYetIsUnknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{}}
	repo := newQueueRepo(t)

	monitor, err := health.NewMonitor(store, history, repo,
		health.WithHeartbeatSource(&stubHeartbeat{}, time.Minute),
	)
	require.NoError(t, err)

	monitor.CheckOnce(ctx)

	check, err := store.LatestHealth(ctx, health.CoordinatorComponent)
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnknown, check.Status)
}

func TestMonitor_Lifecycle(t *testing.T) {
	t.Parallel()

	store := health.NewMemoryStore(10)
	history := &stubHistory{cycles: map[string][]queue.CycleRecord{}}
	repo := newQueueRepo(t, "data_fetcher")

	monitor, err := health.NewMonitor(store, history, repo,
		health.WithCheckInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	assert.ErrorIs(t, monitor.Stop(), health.ErrMonitorNotStarted)

	go func() { _ = monitor.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := store.LatestHealth(context.Background(), "data_fetcher")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, monitor.Stop())
}

func TestNewMonitor_Validation(t *testing.T) {
	t.Parallel()

	store := health.NewMemoryStore(10)
	history := &stubHistory{}
	repo := newQueueRepo(t)

	_, err := health.NewMonitor(nil, history, repo)
	assert.ErrorIs(t, err, health.ErrStoreNil)

	_, err = health.NewMonitor(store, nil, repo)
	assert.ErrorIs(t, err, health.ErrHistorySourceNil)

	_, err = health.NewMonitor(store, history, nil)
	assert.ErrorIs(t, err, health.ErrQueueRepositoryNil)
}
