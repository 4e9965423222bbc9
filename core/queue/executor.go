package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Executor runs the tasks of exactly one queue, strictly one at a time, in
// priority order, honoring dependencies. It never lets a handler error,
// panic, or timeout escape its loop: every outcome is converted into a
// persisted status transition plus a published result.
type Executor struct {
	repo      ExecutorRepository
	registry  *Registry
	cfg       QueueConfig
	publisher ResultPublisher
	gate      AdmissionGate
	slot      ExecutionSlot
	cycleHook func(CycleRecord)

	// Configuration
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	paused atomic.Bool
	ready  chan struct{}

	// Observability metrics
	tasksProcessed atomic.Int64
	tasksFailed    atomic.Int64
	activeTask     atomic.Int32
}

// ExecutorStats provides observability metrics for monitoring and debugging.
type ExecutorStats struct {
	Queue          string
	TasksProcessed int64 // Total number of successfully completed tasks
	TasksFailed    int64 // Total number of failed executions (including retried attempts)
	ActiveTask     int32 // 1 while a task is being executed, 0 otherwise
	IsRunning      bool  // Whether the executor loop is running
	IsPaused       bool  // Whether task admission is paused
}

// NewExecutor creates an executor for one queue. The registry must contain a
// handler for every task type that will be enqueued; missing handlers fail
// tasks immediately rather than crashing the loop.
func NewExecutor(repo ExecutorRepository, registry *Registry, cfg QueueConfig, opts ...ExecutorOption) (*Executor, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if registry == nil {
		return nil, ErrNoHandlers
	}
	if cfg.Name == "" {
		return nil, ErrQueueNotFound
	}

	options := defaultExecutorOptions()
	for _, opt := range opts {
		opt(options)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	return &Executor{
		repo:            repo,
		registry:        registry,
		cfg:             cfg,
		publisher:       options.publisher,
		gate:            options.gate,
		slot:            options.slot,
		cycleHook:       options.cycleHook,
		pollInterval:    options.pollInterval,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
		ready:           make(chan struct{}),
	}, nil
}

// Queue returns the name of the queue this executor serves.
func (e *Executor) Queue() string {
	return e.cfg.Name
}

// Ready is closed once the executor loop has started and is accepting work.
// The coordinator waits on it so a component is never considered started
// until it reports so.
func (e *Executor) Ready() <-chan struct{} {
	return e.ready
}

// Start begins the executor loop. This is a blocking operation that runs
// until the context is cancelled. Use Run() for errgroup pattern or call
// this in a goroutine.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return fmt.Errorf("executor %q already started", e.cfg.Name)
	}
	if e.registry.Len() == 0 {
		e.mu.Unlock()
		return ErrNoHandlers
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.InfoContext(e.ctx, "executor started",
		slog.String("queue", e.cfg.Name),
		slog.Duration("poll_interval", e.pollInterval),
		slog.Duration("task_timeout", e.cfg.Timeout))

	close(e.ready)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Drain once immediately so queued work is not delayed by a full poll interval.
	e.drainCycle()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.InfoContext(context.Background(), "executor stopping",
				slog.String("queue", e.cfg.Name))
			return e.ctx.Err()
		case <-ticker.C:
			e.drainCycle()
		}
	}
}

// Stop gracefully shuts down the executor, letting the in-flight task finish
// within the shutdown timeout. Returns an error if the timeout is exceeded.
func (e *Executor) Stop() error {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return fmt.Errorf("executor %q not started", e.cfg.Name)
	}
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.InfoContext(context.Background(), "executor stopped cleanly",
			slog.String("queue", e.cfg.Name))
		return nil
	case <-ctx.Done():
		e.logger.WarnContext(context.Background(), "executor shutdown timeout exceeded",
			slog.String("queue", e.cfg.Name),
			slog.Duration("timeout", e.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", e.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (e *Executor) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- e.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = e.Stop()
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

// Pause suspends admission of new tasks. The in-flight task, if any, runs to
// completion. Returns ErrAlreadyPaused if the queue is already paused.
func (e *Executor) Pause() error {
	if !e.paused.CompareAndSwap(false, true) {
		return ErrAlreadyPaused
	}
	e.logger.InfoContext(context.Background(), "queue paused", slog.String("queue", e.cfg.Name))
	return nil
}

// Resume re-enables task admission. Returns ErrNotPaused if the queue is not paused.
func (e *Executor) Resume() error {
	if !e.paused.CompareAndSwap(true, false) {
		return ErrNotPaused
	}
	e.logger.InfoContext(context.Background(), "queue resumed", slog.String("queue", e.cfg.Name))
	return nil
}

// IsPaused reports whether task admission is currently suspended.
func (e *Executor) IsPaused() bool {
	return e.paused.Load()
}

// drainCycle claims and runs eligible tasks until the queue is empty, paused,
// gated, or the executor is stopping. One cycle produces one write-once
// history record when any task was attempted.
func (e *Executor) drainCycle() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	ctx := e.ctx
	e.mu.Unlock()
	defer e.wg.Done()

	rec := CycleRecord{
		ID:        uuid.New(),
		Queue:     e.cfg.Name,
		StartedAt: time.Now(),
	}

	for ctx.Err() == nil && !e.paused.Load() {
		if e.gate != nil {
			if err := e.gate.Ready(e.cfg.Name); err != nil {
				e.logger.DebugContext(ctx, "queue admission suspended",
					slog.String("queue", e.cfg.Name),
					slog.String("reason", err.Error()))
				break
			}
		}

		if e.slot != nil {
			if err := e.slot.Acquire(ctx, 1); err != nil {
				break
			}
		}

		claimed := e.claimAndRun(ctx, &rec)

		if e.slot != nil {
			e.slot.Release(1)
		}

		if !claimed {
			break
		}
	}

	if rec.TasksAttempted > 0 && e.cycleHook != nil {
		rec.EndedAt = time.Now()
		e.cycleHook(rec)
	}
}

// claimAndRun claims one task and executes it. Returns false when there was
// nothing to claim or claiming failed, signaling the end of the drain cycle.
func (e *Executor) claimAndRun(ctx context.Context, rec *CycleRecord) bool {
	task, err := e.repo.ClaimTask(ctx, e.cfg.Name)
	if err != nil {
		if !errors.Is(err, ErrNoTaskToClaim) && !errors.Is(err, context.Canceled) {
			e.logger.ErrorContext(ctx, "failed to claim task",
				slog.String("queue", e.cfg.Name),
				slog.String("error", err.Error()))
		}
		return false
	}

	var done func(bool)
	if e.gate != nil {
		// Serial execution within the queue keeps at most one attempt in
		// flight, so a half-open breaker always has room for the probe.
		if d, allowErr := e.gate.Allow(e.cfg.Name); allowErr == nil {
			done = d
		}
	}

	success := e.runTask(ctx, task)
	if done != nil {
		done(success)
	}

	rec.TasksAttempted++
	if success {
		rec.TasksSucceeded++
	} else {
		rec.TasksFailed++
	}
	return true
}

// runTask executes one claimed task with its registered handler, bounded by
// the queue timeout. Returns true on success.
func (e *Executor) runTask(ctx context.Context, task *Task) bool {
	start := time.Now()
	e.activeTask.Add(1)
	defer e.activeTask.Add(-1)

	e.logger.DebugContext(ctx, "task claimed",
		slog.String("queue", e.cfg.Name),
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.TaskType),
		slog.Int("retry_count", int(task.RetryCount)))

	handler, ok := e.registry.Get(task.TaskType)
	if !ok {
		// Configuration error: retrying cannot help, fail immediately.
		e.tasksFailed.Add(1)
		msg := fmt.Sprintf("no handler registered for task type: %s", task.TaskType)
		e.failTask(ctx, task, msg, time.Since(start))
		return false
	}

	execErr := e.invokeHandler(task, handler)
	duration := time.Since(start)

	if execErr != nil {
		e.handleFailure(ctx, task, execErr, duration)
		return false
	}

	if err := e.repo.CompleteTask(ctx, task.ID, duration); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark task completed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return false
	}

	e.tasksProcessed.Add(1)
	e.logger.InfoContext(ctx, "task completed",
		slog.String("queue", e.cfg.Name),
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.TaskType),
		slog.Duration("duration", duration))

	e.publish(ctx, TaskResult{
		TaskID:      task.ID,
		Queue:       task.Queue,
		TaskType:    task.TaskType,
		Status:      TaskStatusCompleted,
		Duration:    duration,
		CompletedAt: time.Now(),
	})
	return true
}

// invokeHandler runs the handler in its own goroutine under a hard watchdog.
// Handlers are expected to honor context cancellation, but a handler that
// ignores it cannot block the executor: when the watchdog fires the task is
// treated as timed out and any late result is discarded.
func (e *Executor) invokeHandler(task *Task, handler Handler) error {
	hctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- fmt.Errorf("panic in handler: %v", r)
			}
		}()
		resultCh <- handler.Handle(hctx, task.Payload)
	}()

	watchdog := time.NewTimer(e.cfg.Timeout)
	defer watchdog.Stop()

	select {
	case err := <-resultCh:
		return err
	case <-watchdog.C:
		cancel()
		return fmt.Errorf("%w after %s", ErrTaskTimeout, e.cfg.Timeout)
	}
}

// handleFailure converts a handler error or timeout into a retry with
// exponential backoff, or a terminal failure once retries are exhausted.
func (e *Executor) handleFailure(ctx context.Context, task *Task, execErr error, duration time.Duration) {
	e.tasksFailed.Add(1)

	e.logger.ErrorContext(ctx, "task failed",
		slog.String("queue", e.cfg.Name),
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.TaskType),
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	if task.RetryCount < task.MaxRetries {
		delay := e.cfg.Retry.NextDelay(task.RetryCount)
		nextRun := time.Now().Add(delay)
		if err := e.repo.RetryTask(ctx, task.ID, execErr.Error(), nextRun); err != nil {
			e.logger.ErrorContext(ctx, "failed to schedule task retry",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			return
		}
		e.logger.InfoContext(ctx, "task scheduled for retry",
			slog.String("task_id", task.ID.String()),
			slog.Duration("backoff", delay))
		return
	}

	e.failTask(ctx, task, execErr.Error(), duration)
}

// failTask marks a task terminally failed and publishes the failure result.
// The failure counter is incremented by the caller.
func (e *Executor) failTask(ctx context.Context, task *Task, msg string, duration time.Duration) {
	if err := e.repo.FailTask(ctx, task.ID, msg, duration); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark task failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	e.logger.WarnContext(ctx, "task failed permanently",
		slog.String("queue", e.cfg.Name),
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.TaskType),
		slog.String("error", msg))

	e.publish(ctx, TaskResult{
		TaskID:      task.ID,
		Queue:       task.Queue,
		TaskType:    task.TaskType,
		Status:      TaskStatusFailed,
		Error:       msg,
		Duration:    duration,
		CompletedAt: time.Now(),
	})
}

func (e *Executor) publish(ctx context.Context, result TaskResult) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishResult(ctx, result); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish task result",
			slog.String("task_id", result.TaskID.String()),
			slog.String("error", err.Error()))
	}
}

// Stats returns current executor statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	isRunning := e.cancel != nil
	e.mu.Unlock()

	return ExecutorStats{
		Queue:          e.cfg.Name,
		TasksProcessed: e.tasksProcessed.Load(),
		TasksFailed:    e.tasksFailed.Load(),
		ActiveTask:     e.activeTask.Load(),
		IsRunning:      isRunning,
		IsPaused:       e.paused.Load(),
	}
}

// Healthcheck validates that the executor loop is running.
// The returned error can be checked using errors.Is.
func (e *Executor) Healthcheck(ctx context.Context) error {
	stats := e.Stats()
	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrExecutorNotRunning)
	}
	return nil
}
