package event_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/event"
	"github.com/tradepulse/engine/core/queue"
)

type enqueueCall struct {
	Queue    string
	TaskType string
	Payload  any
}

type captureEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
	err   error
}

func (e *captureEnqueuer) Enqueue(ctx context.Context, queueName, taskType string, payload any, opts ...queue.EnqueueOption) (*queue.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, enqueueCall{Queue: queueName, TaskType: taskType, Payload: payload})
	return &queue.Task{Queue: queueName, TaskType: taskType}, nil
}

func (e *captureEnqueuer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *captureEnqueuer) call(i int) enqueueCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

// flakyDeliveryStore fails MarkDelivered a fixed number of times so the same
// event is redelivered on subsequent drain cycles.
type flakyDeliveryStore struct {
	*event.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyDeliveryStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return context.DeadlineExceeded
	}
	s.mu.Unlock()
	return s.MemoryStore.MarkDelivered(ctx, id)
}

func taskPayload(t *testing.T, taskType string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(event.TaskEventPayload{
		Queue:      "data_fetcher",
		TaskType:   taskType,
		DurationMS: 42,
	})
	require.NoError(t, err)
	return payload
}

func newTestRouter(t *testing.T, store event.Store, triggers event.TriggerRepository, enq event.TaskEnqueuer, opts ...event.RouterOption) *event.Router {
	t.Helper()
	opts = append([]event.RouterOption{event.WithPollInterval(10 * time.Millisecond)}, opts...)
	router, err := event.NewRouter(store, triggers, enq, opts...)
	require.NoError(t, err)
	return router
}

func startRouter(t *testing.T, router *event.Router) {
	t.Helper()
	go func() { _ = router.Start(context.Background()) }()
	t.Cleanup(func() { _ = router.Stop() })

	require.Eventually(t, func() bool {
		return router.Stats().IsRunning
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_FiresMatchingTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		SourceQueue: "data_fetcher",
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		Condition:   &event.Condition{TaskTypes: []string{"fetch_news"}},
		Priority:    queue.PriorityHigh,
		IsActive:    true,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_news"))
	require.NoError(t, store.Append(ctx, evt))
	router.Wake()

	require.Eventually(t, func() bool {
		return enq.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	call := enq.call(0)
	assert.Equal(t, "ai_analysis", call.Queue)
	assert.Equal(t, "analyze_news", call.TaskType)

	require.Eventually(t, func() bool {
		stored, err := store.GetEvent(ctx, evt.ID)
		return err == nil && stored.Status == event.StatusDelivered
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_SkipsNonMatchingEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		SourceQueue: "data_fetcher",
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		Condition:   &event.Condition{TaskTypes: []string{"fetch_news"}},
		IsActive:    true,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	// Wrong source queue, wrong task type, and wrong event type.
	events := []event.Event{
		event.NewEvent(event.TypeTaskCompleted, "portfolio_sync", taskPayload(t, "fetch_news")),
		event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_prices")),
		event.NewEvent(event.TypeTaskFailed, "data_fetcher", taskPayload(t, "fetch_news")),
	}
	for _, evt := range events {
		require.NoError(t, store.Append(ctx, evt))
	}
	router.Wake()

	for _, evt := range events {
		require.Eventually(t, func() bool {
			stored, err := store.GetEvent(ctx, evt.ID)
			return err == nil && stored.Status == event.StatusDelivered
		}, time.Second, 5*time.Millisecond)
	}

	assert.Zero(t, enq.callCount(), "no trigger should have fired")
}

func TestRouter_InactiveTriggerIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "disabled",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		IsActive:    false,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_news"))
	require.NoError(t, store.Append(ctx, evt))
	router.Wake()

	require.Eventually(t, func() bool {
		stored, err := store.GetEvent(ctx, evt.ID)
		return err == nil && stored.Status == event.StatusDelivered
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, enq.callCount())
}

func TestRouter_IdempotentUnderRedelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &flakyDeliveryStore{MemoryStore: event.NewMemoryStore(), failures: 1}
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		IsActive:    true,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_news"))
	require.NoError(t, store.Append(ctx, evt))
	router.Wake()

	// The first routing pass fires the trigger but fails to settle delivery,
	// so the event is redelivered on the next cycle.
	require.Eventually(t, func() bool {
		stored, err := store.GetEvent(ctx, evt.ID)
		return err == nil && stored.Status == event.StatusDelivered
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, enq.callCount(), "redelivered event must fire the trigger exactly once")
}

func TestRouter_ReplaysPendingEventsOnStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		IsActive:    true,
	}))

	// Appended before the router starts, as after a crash.
	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_news"))
	require.NoError(t, store.Append(ctx, evt))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	require.Eventually(t, func() bool {
		return enq.callCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_DeadLettersAfterEnqueueFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{err: queue.ErrQueueInactive}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		IsActive:    true,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", taskPayload(t, "fetch_news"))
	require.NoError(t, store.Append(ctx, evt))
	router.Wake()

	require.Eventually(t, func() bool {
		stored, err := store.GetEvent(ctx, evt.ID)
		return err == nil && stored.Status == event.StatusDeadLettered
	}, time.Second, 5*time.Millisecond)

	stored, err := store.GetEvent(ctx, evt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "ai_analysis")

	dead, err := store.DeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, evt.ID, dead[0].ID)
}

func TestRouter_DeadLettersMalformedPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	require.NoError(t, store.UpsertTrigger(ctx, event.Trigger{
		ID:          "news-to-analysis",
		EventType:   event.TypeTaskCompleted,
		TargetQueue: "ai_analysis",
		TaskType:    "analyze_news",
		Condition:   &event.Condition{TaskTypes: []string{"fetch_news"}},
		IsActive:    true,
	}))

	router := newTestRouter(t, store, store, enq)
	startRouter(t, router)

	evt := event.NewEvent(event.TypeTaskCompleted, "data_fetcher", json.RawMessage(`not-json`))
	require.NoError(t, store.Append(ctx, evt))
	router.Wake()

	require.Eventually(t, func() bool {
		stored, err := store.GetEvent(ctx, evt.ID)
		return err == nil && stored.Status == event.StatusDeadLettered
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, enq.callCount())
}

func TestRouter_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("stop before start", func(t *testing.T) {
		t.Parallel()

		store := event.NewMemoryStore()
		router := newTestRouter(t, store, store, &captureEnqueuer{})
		assert.ErrorIs(t, router.Stop(), event.ErrRouterNotStarted)
	})

	t.Run("double start", func(t *testing.T) {
		t.Parallel()

		store := event.NewMemoryStore()
		router := newTestRouter(t, store, store, &captureEnqueuer{})
		startRouter(t, router)

		assert.ErrorIs(t, router.Start(context.Background()), event.ErrRouterAlreadyStarted)
	})

	t.Run("healthcheck reflects running state", func(t *testing.T) {
		t.Parallel()

		store := event.NewMemoryStore()
		router := newTestRouter(t, store, store, &captureEnqueuer{})

		require.ErrorIs(t, router.Healthcheck(context.Background()), event.ErrRouterNotRunning)

		startRouter(t, router)
		assert.NoError(t, router.Healthcheck(context.Background()))
	})
}

func TestNewRouter_Validation(t *testing.T) {
	t.Parallel()

	store := event.NewMemoryStore()
	enq := &captureEnqueuer{}

	_, err := event.NewRouter(nil, store, enq)
	assert.ErrorIs(t, err, event.ErrStoreNil)

	_, err = event.NewRouter(store, nil, enq)
	assert.ErrorIs(t, err, event.ErrTriggerRepositoryNil)

	_, err = event.NewRouter(store, store, nil)
	assert.ErrorIs(t, err, event.ErrEnqueuerNil)
}
