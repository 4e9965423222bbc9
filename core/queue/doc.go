// Package queue provides the task side of the scheduling engine: durable
// task records with priorities and dependencies, per-queue executors with
// strict sequential execution, and an enqueuer for typed payloads.
//
// # Model
//
// Tasks belong to exactly one named queue and move forward through
// pending -> running -> {completed | failed}, with running -> retrying ->
// pending for bounded retries. A task with unmet dependencies is never
// selected for execution, and a completed task never regresses.
//
// # Executors
//
// One Executor serves one queue and runs its tasks strictly one at a time,
// highest priority first, FIFO among equal priorities. Handlers are invoked
// through a Registry keyed by task type and bounded by the queue timeout; a
// handler that ignores cancellation is abandoned by a hard watchdog and its
// late result discarded. Handler errors, panics, and timeouts never escape
// the loop: each becomes a persisted status transition plus a published
// TaskResult.
//
//	storage := queue.NewMemoryStorage()
//	storage.UpsertQueue(ctx, &queue.QueueConfig{
//		Name:     "data_fetcher",
//		Timeout:  time.Minute,
//		Retry:    queue.DefaultRetryPolicy(),
//		IsActive: true,
//	})
//
//	registry := queue.NewRegistry()
//	registry.Register(queue.NewTaskHandler("fetch_news", func(ctx context.Context, p NewsRequest) error {
//		return fetchNews(ctx, p.Symbol)
//	}))
//
//	executor, _ := queue.NewExecutor(storage, registry, cfg,
//		queue.WithPollInterval(time.Second),
//	)
//	go executor.Start(ctx)
//
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	enqueuer.Enqueue(ctx, "data_fetcher", "fetch_news", NewsRequest{Symbol: "AAPL"},
//		queue.WithPriority(queue.PriorityHigh),
//	)
//
// # Storage
//
// All components talk to storage through narrow repository interfaces; the
// unified Storage interface combines them. MemoryStorage implements the full
// surface for tests and development, and integration/database/pg provides
// the durable PostgreSQL backend. All mutations are single-row atomic
// updates keyed by task id.
package queue
