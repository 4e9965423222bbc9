package coordinator

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tradepulse/engine/core/queue"
)

// Option configures a Coordinator during construction.
type Option func(*Coordinator) error

// WithMode sets the default execution mode used when no state has been
// persisted yet. Default is CONCURRENT.
func WithMode(mode ExecutionMode) Option {
	return func(c *Coordinator) error {
		if !mode.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
		}
		c.defaultMode = mode
		return nil
	}
}

// WithMaxConcurrentQueues caps how many executors run tasks at once in
// CONCURRENT mode. Default is 3.
func WithMaxConcurrentQueues(n int) Option {
	return func(c *Coordinator) error {
		if n > 0 {
			c.maxConcurrentQueues = n
		}
		return nil
	}
}

// WithResultPublisher wires task results into the event log.
func WithResultPublisher(p queue.ResultPublisher) Option {
	return func(c *Coordinator) error {
		c.publisher = p
		return nil
	}
}

// WithAdmissionGate wires circuit breaking into every executor.
func WithAdmissionGate(g queue.AdmissionGate) Option {
	return func(c *Coordinator) error {
		c.gate = g
		return nil
	}
}

// WithHeartbeatInterval sets how often the heartbeat timestamp is refreshed.
// Default is 30 seconds.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d > 0 {
			c.heartbeatInterval = d
		}
		return nil
	}
}

// WithReadyTimeout sets how long Start waits for executors to signal
// readiness. Default is 10 seconds.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d > 0 {
			c.readyTimeout = d
		}
		return nil
	}
}

// WithStaleTaskAge sets how old a running task must be before startup
// recovery re-admits it. Default is 15 minutes.
func WithStaleTaskAge(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d > 0 {
			c.staleTaskAge = d
		}
		return nil
	}
}

// WithExecutorPollInterval sets the poll interval passed to every executor.
// Default is 1 second.
func WithExecutorPollInterval(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d > 0 {
			c.pollInterval = d
		}
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		c.logger = logger
		return nil
	}
}
