package event

import (
	"io"
	"log/slog"
	"time"

	"github.com/tradepulse/engine/pkg/broadcast"
)

// RouterOption configures a Router during construction.
type RouterOption func(*Router)

// WithPollInterval sets how often the router checks for pending events when
// no wake-up arrives. Default is 1 second.
func WithPollInterval(interval time.Duration) RouterOption {
	return func(r *Router) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithBatchSize sets how many pending events are loaded per drain iteration.
// Default is 100.
func WithBatchSize(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithEnqueueRetries sets how many times a failed trigger enqueue is retried
// before the event is dead-lettered. Default is 3.
func WithEnqueueRetries(retries uint64) RouterOption {
	return func(r *Router) {
		r.enqueueRetries = retries
	}
}

// WithShutdownTimeout sets how long Stop waits for the current drain cycle.
// Default is 30 seconds.
func WithShutdownTimeout(timeout time.Duration) RouterOption {
	return func(r *Router) {
		if timeout > 0 {
			r.shutdownTimeout = timeout
		}
	}
}

// WithBroadcaster publishes every delivered event to subscribers, giving
// dashboards a push-style stream alongside pull-style queries.
func WithBroadcaster(b broadcast.Broadcaster[Event]) RouterOption {
	return func(r *Router) {
		r.broadcaster = b
	}
}

// WithRouterLogger sets the structured logger. Defaults to a no-op logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		r.logger = logger
	}
}
