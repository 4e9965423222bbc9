package health

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tradepulse/engine/core/queue"
)

// BreakerGate is a per-queue circuit breaker implementing queue.AdmissionGate.
// After the configured number of consecutive task failures the queue's breaker
// opens and Ready reports queue.ErrCircuitOpen, so the executor stops claiming
// new tasks while the backlog stays intact. Once the cooldown elapses the
// breaker turns half-open and admits exactly one probe: a successful probe
// closes the breaker, a failed one restarts the cooldown. A suspended queue is
// therefore always retried, never abandoned.
type BreakerGate struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker

	threshold uint32
	cooldown  time.Duration
	logger    *slog.Logger
}

var _ queue.AdmissionGate = (*BreakerGate)(nil)

// BreakerGateOption configures a BreakerGate during construction.
type BreakerGateOption func(*BreakerGate)

// WithBreakerLogger sets the structured logger. Defaults to a no-op logger.
func WithBreakerLogger(logger *slog.Logger) BreakerGateOption {
	return func(g *BreakerGate) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		g.logger = logger
	}
}

// NewBreakerGate creates a gate that opens a queue's breaker after threshold
// consecutive failures and allows a single probe once cooldown has elapsed.
func NewBreakerGate(threshold uint32, cooldown time.Duration, opts ...BreakerGateOption) *BreakerGate {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	g := &BreakerGate{
		breakers:  make(map[string]*gobreaker.TwoStepCircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Ready reports whether the queue may claim a new task. It returns
// queue.ErrCircuitOpen while the breaker is open; a half-open breaker is ready
// so the probe task can be claimed.
func (g *BreakerGate) Ready(queueName string) error {
	if g.breaker(queueName).State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: %s", queue.ErrCircuitOpen, queueName)
	}
	return nil
}

// Allow registers one execution attempt for a claimed task. The returned
// callback must be invoked with the task's outcome so the breaker observes
// every attempt, probes included.
func (g *BreakerGate) Allow(queueName string) (func(success bool), error) {
	done, err := g.breaker(queueName).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", queue.ErrCircuitOpen, queueName)
		}
		return nil, err
	}
	return done, nil
}

// State returns the breaker state for one queue. A queue that never failed
// reports a closed breaker.
func (g *BreakerGate) State(queueName string) gobreaker.State {
	return g.breaker(queueName).State()
}

// Counts returns the breaker's rolling counters for one queue.
func (g *BreakerGate) Counts(queueName string) gobreaker.Counts {
	return g.breaker(queueName).Counts()
}

func (g *BreakerGate) breaker(queueName string) *gobreaker.TwoStepCircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, exists := g.breakers[queueName]
	if !exists {
		cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        queueName,
			MaxRequests: 1,
			Timeout:     g.cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= g.threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn("queue circuit breaker state changed",
					slog.String("queue", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
		g.breakers[queueName] = cb
	}
	return cb
}
