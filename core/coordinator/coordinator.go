package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tradepulse/engine/core/queue"
)

// Coordinator supervises one executor per active queue as a single
// process-wide state machine: STOPPED -> STARTED -> (ERROR | STOPPED). The
// persisted execution mode is the single source of truth; a restart resumes
// in whatever mode was last saved, regardless of configuration defaults.
//
// In SEQUENTIAL mode a one-slot semaphore is shared across executors, so only
// one queue drains at a time; in CONCURRENT mode the semaphore is sized to
// max_concurrent_queues. An executor is never considered started until it
// signals readiness through its ready channel.
type Coordinator struct {
	storage   queue.Storage
	registry  *queue.Registry
	states    StateStore
	history   HistoryStore
	publisher queue.ResultPublisher
	gate      queue.AdmissionGate
	enqueuer  *queue.Enqueuer
	cron      *cron.Cron

	defaultMode         ExecutionMode
	maxConcurrentQueues int
	heartbeatInterval   time.Duration
	readyTimeout        time.Duration
	staleTaskAge        time.Duration
	pollInterval        time.Duration
	logger              *slog.Logger

	mu        sync.Mutex
	state     State
	mode      ExecutionMode
	executors map[string]*queue.Executor
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a coordinator. Storage, registry, state store, and history
// store are required.
func New(storage queue.Storage, registry *queue.Registry, states StateStore, history HistoryStore, opts ...Option) (*Coordinator, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}
	if states == nil {
		return nil, ErrStateStoreNil
	}
	if history == nil {
		return nil, ErrHistoryStoreNil
	}

	enqueuer, err := queue.NewEnqueuer(storage)
	if err != nil {
		return nil, fmt.Errorf("create enqueuer: %w", err)
	}

	c := &Coordinator{
		storage:             storage,
		registry:            registry,
		states:              states,
		history:             history,
		enqueuer:            enqueuer,
		cron:                cron.New(),
		defaultMode:         ModeConcurrent,
		maxConcurrentQueues: 3,
		heartbeatInterval:   30 * time.Second,
		readyTimeout:        10 * time.Second,
		staleTaskAge:        15 * time.Minute,
		pollInterval:        time.Second,
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:               StateStopped,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the execution mode the coordinator is running in, or the
// configured default when stopped.
func (c *Coordinator) Mode() ExecutionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != "" {
		return c.mode
	}
	return c.defaultMode
}

// Start loads the persisted state, re-admits tasks stranded by a previous
// crash, spins up one executor per active queue, and returns once every
// executor has signaled readiness. The coordinator keeps running until Stop
// is called or ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStarted {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	mode, maxConc := c.defaultMode, c.maxConcurrentQueues
	rec, err := c.states.LoadState(ctx)
	switch {
	case err == nil:
		if rec.Mode.Valid() {
			mode = rec.Mode
		}
		if rec.MaxConcurrentQueues > 0 {
			maxConc = rec.MaxConcurrentQueues
		}
	case !errors.Is(err, ErrNoState):
		return fmt.Errorf("load coordinator state: %w", err)
	}

	if requeued, err := c.storage.RequeueStale(ctx, c.staleTaskAge); err != nil {
		c.logger.ErrorContext(ctx, "failed to requeue stale tasks",
			slog.String("error", err.Error()))
	} else if requeued > 0 {
		c.logger.InfoContext(ctx, "re-admitted tasks stranded by previous run",
			slog.Int64("count", requeued))
	}

	queues, err := c.storage.ListQueues(ctx)
	if err != nil {
		return fmt.Errorf("list queues: %w", err)
	}

	slots := int64(maxConc)
	if mode == ModeSequential {
		slots = 1
	}
	if slots < 1 {
		slots = 1
	}
	slot := semaphore.NewWeighted(slots)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	executors := make(map[string]*queue.Executor)
	for _, cfg := range queues {
		if !cfg.IsActive {
			continue
		}

		ex, err := queue.NewExecutor(c.storage, c.registry, *cfg,
			queue.WithPollInterval(c.pollInterval),
			queue.WithResultPublisher(c.publisher),
			queue.WithAdmissionGate(c.gate),
			queue.WithExecutionSlot(slot),
			queue.WithCycleHook(c.recordCycle(string(mode))),
			queue.WithExecutorLogger(c.logger),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("create executor for %s: %w", cfg.Name, err)
		}

		executors[cfg.Name] = ex
		g.Go(ex.Run(gctx))
	}

	if len(executors) == 0 {
		cancel()
		return ErrNoActiveQueues
	}

	readyDeadline := time.NewTimer(c.readyTimeout)
	defer readyDeadline.Stop()
	for name, ex := range executors {
		select {
		case <-ex.Ready():
		case <-gctx.Done():
			cancel()
			_ = g.Wait()
			return fmt.Errorf("%w: %s", ErrExecutorNotReady, name)
		case <-readyDeadline.C:
			cancel()
			_ = g.Wait()
			return fmt.Errorf("%w: %s: timeout after %s", ErrExecutorNotReady, name, c.readyTimeout)
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(c.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := c.states.Heartbeat(context.Background(), time.Now()); err != nil {
					c.logger.Error("heartbeat update failed",
						slog.String("error", err.Error()))
				}
			}
		}
	})

	c.cron.Start()
	g.Go(func() error {
		<-gctx.Done()
		<-c.cron.Stop().Done()
		return gctx.Err()
	})

	now := time.Now()
	if err := c.states.SaveState(ctx, Record{
		State:               StateStarted,
		Mode:                mode,
		MaxConcurrentQueues: maxConc,
		StartedAt:           &now,
		LastHeartbeat:       now,
	}); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("persist coordinator state: %w", err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.state = StateStarted
	c.mode = mode
	c.executors = executors
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.supervise(g, mode, maxConc, done)

	c.logger.InfoContext(ctx, "coordinator started",
		slog.String("mode", string(mode)),
		slog.Int("queues", len(executors)))

	return nil
}

// supervise waits for the executor group and settles the final state: an
// executor error transitions the coordinator to ERROR, a plain context
// cancellation to STOPPED.
func (c *Coordinator) supervise(g *errgroup.Group, mode ExecutionMode, maxConc int, done chan struct{}) {
	defer close(done)

	err := g.Wait()

	c.mu.Lock()
	stopRequested := c.state == StateStopped
	c.mu.Unlock()
	if stopRequested {
		return
	}

	rec := Record{Mode: mode, MaxConcurrentQueues: maxConc, LastHeartbeat: time.Now()}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		rec.State = StateError
		rec.LastError = err.Error()
		c.logger.Error("coordinator entered error state",
			slog.String("error", err.Error()))
	} else {
		rec.State = StateStopped
	}

	c.mu.Lock()
	if rec.State == StateError {
		c.state = StateError
	} else {
		c.state = StateStopped
	}
	c.cancel = nil
	c.executors = nil
	c.mu.Unlock()

	if saveErr := c.states.SaveState(context.Background(), rec); saveErr != nil {
		c.logger.Error("failed to persist coordinator state",
			slog.String("error", saveErr.Error()))
	}
}

// Stop shuts down all executors and persists the STOPPED state.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateStarted && c.state != StateError {
		c.mu.Unlock()
		return ErrNotStarted
	}
	cancel := c.cancel
	done := c.done
	mode := c.mode
	c.state = StateStopped
	c.cancel = nil
	c.executors = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if err := c.states.SaveState(context.Background(), Record{
		State:               StateStopped,
		Mode:                mode,
		MaxConcurrentQueues: c.maxConcurrentQueues,
		LastHeartbeat:       time.Now(),
	}); err != nil {
		return fmt.Errorf("persist coordinator state: %w", err)
	}

	c.logger.Info("coordinator stopped")
	return nil
}

// SetMode persists a new execution mode for the next start. The coordinator
// must be stopped; the stored mode is the single source of truth on startup.
func (c *Coordinator) SetMode(ctx context.Context, mode ExecutionMode, maxConcurrentQueues int) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	if c.state == StateStarted {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	if maxConcurrentQueues < 1 {
		maxConcurrentQueues = c.maxConcurrentQueues
	}

	return c.states.SaveState(ctx, Record{
		State:               StateStopped,
		Mode:                mode,
		MaxConcurrentQueues: maxConcurrentQueues,
	})
}

// PauseQueue suspends task admission for one queue. The executor finishes its
// in-flight task but claims no new ones.
func (c *Coordinator) PauseQueue(name string) error {
	ex, err := c.executor(name)
	if err != nil {
		return err
	}
	return ex.Pause()
}

// ResumeQueue lifts a pause set by PauseQueue.
func (c *Coordinator) ResumeQueue(name string) error {
	ex, err := c.executor(name)
	if err != nil {
		return err
	}
	return ex.Resume()
}

// TriggerNow admits a task out of band, at top priority unless an option
// says otherwise. The task still passes the queue's normal eligibility rules:
// dependencies must be met and the queue's serial execution discipline is
// preserved.
func (c *Coordinator) TriggerNow(ctx context.Context, queueName, taskType string, payload any, opts ...queue.EnqueueOption) (*queue.Task, error) {
	c.mu.Lock()
	started := c.state == StateStarted
	c.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	enqOpts := append([]queue.EnqueueOption{queue.WithPriority(queue.PriorityMax)}, opts...)
	task, err := c.enqueuer.Enqueue(ctx, queueName, taskType, payload, enqOpts...)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "task triggered manually",
		slog.String("queue", queueName),
		slog.String("task_type", taskType),
		slog.String("task_id", task.ID.String()))
	return task, nil
}

// ClearCompleted removes completed tasks, scoped to one queue when name is
// non-empty. Completed tasks still referenced as dependencies of live tasks
// are preserved.
func (c *Coordinator) ClearCompleted(ctx context.Context, name string) (int64, error) {
	if name != "" {
		if _, err := c.storage.GetQueue(ctx, name); err != nil {
			return 0, err
		}
	}
	return c.storage.ClearCompleted(ctx, name)
}

// QueueStatus returns per-status task counts and average duration for one queue.
func (c *Coordinator) QueueStatus(ctx context.Context, name string) (*queue.QueueStats, error) {
	if _, err := c.storage.GetQueue(ctx, name); err != nil {
		return nil, err
	}
	return c.storage.QueueStats(ctx, name)
}

// History lists recent execution cycles, newest first. An empty queue name
// spans all queues.
func (c *Coordinator) History(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error) {
	return c.history.RecentCycles(ctx, queueName, limit)
}

// Healthcheck reports whether the coordinator is started and every supervised
// executor loop is alive. Failures from individual executors are joined so a
// single degraded queue is visible without masking the others.
func (c *Coordinator) Healthcheck(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStarted {
		c.mu.Unlock()
		return errors.Join(ErrHealthcheckFailed, ErrNotStarted)
	}
	executors := make([]*queue.Executor, 0, len(c.executors))
	for _, ex := range c.executors {
		executors = append(executors, ex)
	}
	c.mu.Unlock()

	var errs []error
	for _, ex := range executors {
		if err := ex.Healthcheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrHealthcheckFailed}, errs...)...)
	}
	return nil
}

func (c *Coordinator) executor(name string) (*queue.Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStarted {
		return nil, ErrNotStarted
	}
	ex, ok := c.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
	}
	return ex, nil
}

// recordCycle returns the executor hook persisting one drain cycle to the
// execution history.
func (c *Coordinator) recordCycle(mode string) func(queue.CycleRecord) {
	return func(rec queue.CycleRecord) {
		rec.Mode = mode
		if err := c.history.RecordCycle(context.Background(), rec); err != nil {
			c.logger.Error("failed to record execution cycle",
				slog.String("queue", rec.Queue),
				slog.String("error", err.Error()))
		}
	}
}
