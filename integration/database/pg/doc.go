// Package pg provides PostgreSQL-backed persistence for the scheduling engine:
// connection management, embedded schema migrations, and durable stores for
// tasks, events, triggers, execution history, health checks, and coordinator
// state.
//
// # Connection Management
//
// Connect wraps pgx pool creation with exponential backoff retry so a
// database that is still starting does not fail the whole process:
//
//	cfg := pg.Config{ConnectionString: os.Getenv("PG_CONN_URL")}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, logger); err != nil {
//		log.Fatal(err)
//	}
//
// All settings map to environment variables through struct tags, with
// defaults sized for a single-tenant scheduling daemon.
//
// # Task Claiming
//
// Storage implements the queue storage interfaces. ClaimTask uses a single
// UPDATE with a FOR UPDATE SKIP LOCKED subselect, so concurrent executors
// never double-dequeue a task and never block each other:
//
//	storage := pg.NewStorage(pool)
//	executor, err := queue.NewExecutor(storage, registry, queueCfg)
//
// # Event Log
//
// EventStore implements the event log and trigger repository. The
// trigger_firings table's composite primary key is the idempotency marker
// that keeps trigger firing at-most-once when an event is redelivered.
//
// # Transactions
//
// WithTx attaches a pgx.Tx to a context; every store participates in it,
// enabling outbox-style atomic writes:
//
//	tx, _ := pool.Begin(ctx)
//	defer tx.Rollback(ctx)
//	ctx = pg.WithTx(ctx, tx)
//	// domain write + enqueue observe the same transaction
//	if _, err := enq.Enqueue(ctx, "portfolio_sync", "sync_positions", payload); err != nil {
//		return err
//	}
//	return tx.Commit(ctx)
//
// # Error Handling
//
// The package exposes sentinel errors for connection and migration failures
// and classification helpers (IsNotFoundError, IsDuplicateKeyError,
// IsForeignKeyViolationError, IsTxClosedError) for common PostgreSQL error
// patterns. Store methods translate driver errors into the domain sentinels
// of the packages they serve, so callers never import pgx to check errors.
package pg
