package queue

import (
	"io"
	"log/slog"
	"time"
)

// ExecutorOption is a functional option for configuring an executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	publisher       ResultPublisher
	gate            AdmissionGate
	slot            ExecutionSlot
	cycleHook       func(CycleRecord)
	logger          *slog.Logger
}

func defaultExecutorOptions() *executorOptions {
	return &executorOptions{
		pollInterval:    time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)), // No-op logger by default
	}
}

// WithPollInterval configures how often the executor checks for eligible
// tasks when the queue is idle.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithShutdownTimeout configures the maximum wait for the in-flight task
// during graceful shutdown.
func WithShutdownTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithResultPublisher wires the executor to a result publisher so task
// completions and failures are announced as events.
func WithResultPublisher(p ResultPublisher) ExecutorOption {
	return func(o *executorOptions) {
		o.publisher = p
	}
}

// WithAdmissionGate installs a circuit-breaker gate consulted before each claim.
func WithAdmissionGate(g AdmissionGate) ExecutorOption {
	return func(o *executorOptions) {
		o.gate = g
	}
}

// WithExecutionSlot installs the coordinator's cross-queue concurrency limit.
func WithExecutionSlot(s ExecutionSlot) ExecutorOption {
	return func(o *executorOptions) {
		o.slot = s
	}
}

// WithCycleHook installs a callback invoked with the write-once record of
// every drain cycle that attempted at least one task.
func WithCycleHook(hook func(CycleRecord)) ExecutorOption {
	return func(o *executorOptions) {
		o.cycleHook = hook
	}
}

// WithExecutorLogger sets the logger for executor operations.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(o *executorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
