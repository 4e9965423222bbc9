package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tradepulse/engine/core/queue"
	"github.com/tradepulse/engine/pkg/broadcast"
)

// Router consumes pending events from the store and, for each active trigger
// whose filters and condition match, enqueues a new task into the trigger's
// target queue. Firing is at-most-once per (event, trigger) pair: the router
// records an idempotency marker before enqueueing, so replaying the same
// event after a crash never spawns a duplicate task.
type Router struct {
	store       Store
	triggers    TriggerRepository
	enqueuer    TaskEnqueuer
	broadcaster broadcast.Broadcaster[Event]

	pollInterval    time.Duration
	batchSize       int
	enqueueRetries  uint64
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	eventsDelivered   atomic.Int64
	eventsDeadLetters atomic.Int64
	tasksSpawned      atomic.Int64
}

// RouterStats provides observability metrics for monitoring and debugging.
type RouterStats struct {
	EventsDelivered   int64
	EventsDeadLetters int64
	TasksSpawned      int64
	IsRunning         bool
}

// NewRouter creates an event router. The store, trigger repository, and
// enqueuer are required.
func NewRouter(store Store, triggers TriggerRepository, enqueuer TaskEnqueuer, opts ...RouterOption) (*Router, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if triggers == nil {
		return nil, ErrTriggerRepositoryNil
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerNil
	}

	r := &Router{
		store:           store,
		triggers:        triggers,
		enqueuer:        enqueuer,
		pollInterval:    time.Second,
		batchSize:       100,
		enqueueRetries:  3,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		wake:            make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Wake nudges the router to drain pending events immediately instead of
// waiting for the next poll tick. Safe to call from any goroutine; extra
// wake-ups coalesce.
func (r *Router) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start begins routing events. It first replays any events left pending by a
// previous run, then drains on every wake-up and poll tick. This is a
// blocking operation; use Run() for errgroup pattern or call it in a
// goroutine.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return ErrRouterAlreadyStarted
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	defer close(done)

	r.logger.InfoContext(ctx, "event router started",
		slog.Duration("poll_interval", r.pollInterval))

	// Replay events that were pending when the previous process exited.
	if err := r.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "event replay failed",
			slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event router stopping")
			return ctx.Err()
		case <-r.wake:
		case <-ticker.C:
		}

		if err := r.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "event drain failed",
				slog.String("error", err.Error()))
		}
	}
}

// Stop gracefully shuts down the router, waiting for the current drain cycle
// to finish.
func (r *Router) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrRouterNotStarted
	}
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
		r.logger.Info("event router stopped cleanly")
		return nil
	case <-time.After(r.shutdownTimeout):
		r.logger.Warn("event router shutdown timeout exceeded",
			slog.Duration("timeout", r.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", r.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (r *Router) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- r.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = r.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// drain routes pending events in batches until none remain.
func (r *Router) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pending, err := r.store.PendingEvents(ctx, r.batchSize)
		if err != nil {
			return fmt.Errorf("list pending events: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		for _, evt := range pending {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := r.routeEvent(ctx, evt); err != nil {
				return err
			}
		}
	}
}

// routeEvent evaluates all active triggers against one event and settles its
// delivery status. Transient store errors are returned so the event stays
// pending for the next cycle; configuration errors dead-letter it.
func (r *Router) routeEvent(ctx context.Context, evt Event) error {
	triggers, err := r.triggers.ActiveTriggers(ctx, evt.Type)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}

	var configErr error

	for _, trigger := range triggers {
		if !trigger.appliesTo(evt) {
			continue
		}

		matched, err := trigger.Condition.Matches(evt)
		if err != nil {
			// Malformed condition or payload is not retryable.
			configErr = err
			r.logger.ErrorContext(ctx, "trigger condition evaluation failed",
				slog.String("event_id", evt.ID.String()),
				slog.String("trigger_id", trigger.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !matched {
			continue
		}

		fired, err := r.store.MarkTriggerFired(ctx, evt.ID, trigger.ID)
		if err != nil {
			return fmt.Errorf("mark trigger fired: %w", err)
		}
		if !fired {
			// Already fired for this event in a previous attempt.
			continue
		}

		if err := r.fireTrigger(ctx, evt, trigger); err != nil {
			reason := fmt.Sprintf("trigger %s: enqueue into %s failed: %s", trigger.ID, trigger.TargetQueue, err)
			r.eventsDeadLetters.Add(1)
			r.logger.ErrorContext(ctx, "event dead-lettered",
				slog.String("event_id", evt.ID.String()),
				slog.String("reason", reason))
			return r.store.MarkDeadLettered(ctx, evt.ID, reason)
		}

		r.tasksSpawned.Add(1)
		r.logger.InfoContext(ctx, "trigger fired",
			slog.String("event_id", evt.ID.String()),
			slog.String("trigger_id", trigger.ID),
			slog.String("target_queue", trigger.TargetQueue),
			slog.String("task_type", trigger.TaskType))
	}

	if configErr != nil {
		r.eventsDeadLetters.Add(1)
		return r.store.MarkDeadLettered(ctx, evt.ID, configErr.Error())
	}

	if err := r.store.MarkDelivered(ctx, evt.ID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	r.eventsDelivered.Add(1)

	if r.broadcaster != nil {
		evt.Status = StatusDelivered
		if err := r.broadcaster.Broadcast(ctx, broadcast.Message[Event]{Data: evt}); err != nil {
			r.logger.WarnContext(ctx, "event broadcast failed",
				slog.String("event_id", evt.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// fireTrigger synthesizes the trigger's task, retrying transient enqueue
// failures a bounded number of times before giving up.
func (r *Router) fireTrigger(ctx context.Context, evt Event, trigger Trigger) error {
	priority := trigger.Priority
	if !priority.Valid() {
		priority = queue.PriorityDefault
	}

	opts := []queue.EnqueueOption{queue.WithPriority(priority)}
	if trigger.MaxRetries > 0 {
		opts = append(opts, queue.WithMaxRetries(trigger.MaxRetries))
	}

	attempt := func() error {
		_, err := r.enqueuer.Enqueue(ctx, trigger.TargetQueue, trigger.TaskType, evt.Payload, opts...)
		if err != nil {
			if _, incErr := r.store.IncrementRetry(ctx, evt.ID); incErr != nil {
				r.logger.WarnContext(ctx, "failed to record event retry",
					slog.String("event_id", evt.ID.String()),
					slog.String("error", incErr.Error()))
			}
			// An inactive or unknown target queue will not recover within
			// this routing attempt.
			if errors.Is(err, queue.ErrQueueInactive) || errors.Is(err, queue.ErrQueueNotFound) {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.enqueueRetries)
	return backoff.Retry(attempt, backoff.WithContext(policy, ctx))
}

// Stats returns current router statistics for observability and monitoring.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	isRunning := r.cancel != nil
	r.mu.Unlock()

	return RouterStats{
		EventsDelivered:   r.eventsDelivered.Load(),
		EventsDeadLetters: r.eventsDeadLetters.Load(),
		TasksSpawned:      r.tasksSpawned.Load(),
		IsRunning:         isRunning,
	}
}

// Healthcheck validates that the router is operational.
func (r *Router) Healthcheck(ctx context.Context) error {
	if !r.Stats().IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrRouterNotRunning)
	}
	return nil
}
