package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/tradepulse/engine/core/queue"
)

// CoordinatorComponent is the pseudo-queue name under which the monitor
// records coordinator heartbeat health.
const CoordinatorComponent = "coordinator"

// Monitor periodically computes each queue's rolling failure rate over its
// most recent execution cycles, folds in the circuit breaker state, and
// persists the result as a QueueHealthCheck. A stale coordinator heartbeat is
// surfaced as CRITICAL.
type Monitor struct {
	store     Store
	history   HistorySource
	queues    queue.QueueRepository
	gate      *BreakerGate
	heartbeat HeartbeatSource

	interval            time.Duration
	windowSize          int
	warnFailureRate     float64
	criticalFailureRate float64
	staleHeartbeatAfter time.Duration
	logger              *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a health monitor. The store, history source, and queue
// repository are required.
func NewMonitor(store Store, history HistorySource, queues queue.QueueRepository, opts ...MonitorOption) (*Monitor, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if history == nil {
		return nil, ErrHistorySourceNil
	}
	if queues == nil {
		return nil, ErrQueueRepositoryNil
	}

	m := &Monitor{
		store:               store,
		history:             history,
		queues:              queues,
		interval:            30 * time.Second,
		windowSize:          20,
		warnFailureRate:     0.3,
		criticalFailureRate: 0.7,
		staleHeartbeatAfter: 2 * time.Minute,
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Start begins periodic health checks. This is a blocking operation; use
// Run() for errgroup pattern or call it in a goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrMonitorAlreadyStarted
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	defer close(done)

	m.logger.InfoContext(ctx, "health monitor started",
		slog.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return ErrMonitorNotStarted
	}
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (m *Monitor) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- m.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = m.Stop()
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

// CheckOnce runs a single health check pass over all queues and the
// coordinator heartbeat.
func (m *Monitor) CheckOnce(ctx context.Context) {
	queues, err := m.queues.ListQueues(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list queues for health check",
			slog.String("error", err.Error()))
		return
	}

	now := time.Now()

	for _, cfg := range queues {
		check, err := m.checkQueue(ctx, cfg.Name, now)
		if err != nil {
			m.logger.ErrorContext(ctx, "queue health check failed",
				slog.String("queue", cfg.Name),
				slog.String("error", err.Error()))
			continue
		}
		if err := m.store.RecordHealthCheck(ctx, check); err != nil {
			m.logger.ErrorContext(ctx, "failed to record health check",
				slog.String("queue", cfg.Name),
				slog.String("error", err.Error()))
		}
	}

	if m.heartbeat != nil {
		check := m.checkHeartbeat(ctx, now)
		if err := m.store.RecordHealthCheck(ctx, check); err != nil {
			m.logger.ErrorContext(ctx, "failed to record heartbeat health check",
				slog.String("error", err.Error()))
		}
	}
}

func (m *Monitor) checkQueue(ctx context.Context, queueName string, now time.Time) (QueueHealthCheck, error) {
	started := time.Now()

	cycles, err := m.history.RecentCycles(ctx, queueName, m.windowSize)
	if err != nil {
		return QueueHealthCheck{}, fmt.Errorf("recent cycles: %w", err)
	}

	var attempted, failed int
	var lastSuccess *time.Time
	consecutive := 0
	counting := true
	for _, cycle := range cycles {
		attempted += cycle.TasksAttempted
		failed += cycle.TasksFailed

		// Cycles are newest first; count the leading run of failing cycles.
		if counting {
			if cycle.TasksFailed > 0 && cycle.TasksSucceeded == 0 {
				consecutive++
			} else if cycle.TasksAttempted > 0 {
				counting = false
			}
		}
		if lastSuccess == nil && cycle.TasksSucceeded > 0 {
			ended := cycle.EndedAt
			lastSuccess = &ended
		}
	}

	var rate float64
	if attempted > 0 {
		rate = float64(failed) / float64(attempted)
	}

	status := StatusHealthy
	details := ""
	switch {
	case attempted == 0:
		// No evidence either way: nothing attempted in the window.
		status = StatusUnknown
		details = "no task executions observed in the history window"
	case rate >= m.criticalFailureRate:
		status = StatusCritical
		details = fmt.Sprintf("failure rate %.0f%% over last %d cycles", rate*100, len(cycles))
	case rate >= m.warnFailureRate:
		status = StatusWarning
		details = fmt.Sprintf("failure rate %.0f%% over last %d cycles", rate*100, len(cycles))
	}

	if m.gate != nil {
		switch m.gate.State(queueName) {
		case gobreaker.StateOpen:
			status = StatusCritical
			details = "circuit breaker open, task admission suspended"
		case gobreaker.StateHalfOpen:
			if status == StatusHealthy || status == StatusUnknown {
				status = StatusWarning
			}
			details = "circuit breaker half-open, probing"
		}
	}

	return QueueHealthCheck{
		ID:                  uuid.New(),
		Queue:               queueName,
		Status:              status,
		FailureRate:         rate,
		ConsecutiveFailures: consecutive,
		LastSuccessAt:       lastSuccess,
		ResponseTimeMS:      time.Since(started).Milliseconds(),
		Details:             details,
		CheckedAt:           now,
	}, nil
}

func (m *Monitor) checkHeartbeat(ctx context.Context, now time.Time) QueueHealthCheck {
	started := time.Now()
	check := QueueHealthCheck{
		ID:        uuid.New(),
		Queue:     CoordinatorComponent,
		Status:    StatusHealthy,
		CheckedAt: now,
	}

	last, err := m.heartbeat.LastHeartbeat(ctx)
	switch {
	case err != nil:
		check.Status = StatusCritical
		check.Details = fmt.Sprintf("heartbeat unavailable: %s", err)
	case last.IsZero():
		check.Status = StatusUnknown
		check.Details = "no heartbeat recorded yet"
	case now.Sub(last) > m.staleHeartbeatAfter:
		check.Status = StatusCritical
		check.Details = fmt.Sprintf("heartbeat stale for %s", now.Sub(last).Round(time.Second))
	default:
		check.LastSuccessAt = &last
	}

	check.ResponseTimeMS = time.Since(started).Milliseconds()
	return check
}
