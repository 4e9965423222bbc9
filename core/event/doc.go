// Package event provides an append-only event log and a declarative router
// that turns task lifecycle events into new tasks in other queues.
//
// Queue executors publish TASK_COMPLETED and TASK_FAILED events through
// TaskResultPublisher. The Router drains pending events and evaluates every
// active Trigger against each one: when the trigger's event type, optional
// source-queue filter, and condition all match, a task is enqueued into the
// trigger's target queue.
//
// # Delivery semantics
//
// Events are delivered at-least-once: an event stays pending until the router
// settles it, and a crash mid-route replays it on the next start. Trigger
// firing is at-most-once per (event, trigger) pair: the router records an
// idempotency marker via Store.MarkTriggerFired before enqueueing, so a
// replayed event never fires the same trigger twice.
//
// Enqueue failures are retried with exponential backoff a bounded number of
// times; an event whose trigger cannot be fired is moved to the dead-letter
// state with the failure reason recorded. Malformed trigger conditions are
// configuration errors and dead-letter the event without retrying.
//
// # Usage
//
//	store := event.NewMemoryStore()
//	router, err := event.NewRouter(store, store, enqueuer,
//	    event.WithRouterLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	publisher, err := event.NewTaskResultPublisher(store, router)
//	if err != nil {
//	    return err
//	}
//
//	// Wire the publisher into each executor with queue.WithResultPublisher,
//	// then run the router alongside them.
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(router.Run(ctx))
package event
