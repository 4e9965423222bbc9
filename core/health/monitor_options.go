package health

import (
	"io"
	"log/slog"
	"time"
)

// MonitorOption configures a Monitor during construction.
type MonitorOption func(*Monitor)

// WithCheckInterval sets how often health checks run. Default is 30 seconds.
func WithCheckInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithWindowSize sets how many recent execution cycles the failure rate is
// computed over. Default is 20.
func WithWindowSize(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.windowSize = n
		}
	}
}

// WithFailureRateThresholds sets the failure rates at which a queue turns
// WARNING and CRITICAL. Defaults are 0.3 and 0.7.
func WithFailureRateThresholds(warn, critical float64) MonitorOption {
	return func(m *Monitor) {
		if warn > 0 {
			m.warnFailureRate = warn
		}
		if critical > 0 {
			m.criticalFailureRate = critical
		}
	}
}

// WithBreakerGate folds circuit breaker state into queue health: an open
// breaker forces CRITICAL, a half-open one at least WARNING.
func WithBreakerGate(gate *BreakerGate) MonitorOption {
	return func(m *Monitor) {
		m.gate = gate
	}
}

// WithHeartbeatSource enables coordinator heartbeat monitoring. A heartbeat
// older than staleAfter is reported CRITICAL. Default staleness is 2 minutes.
func WithHeartbeatSource(src HeartbeatSource, staleAfter time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.heartbeat = src
		if staleAfter > 0 {
			m.staleHeartbeatAfter = staleAfter
		}
	}
}

// WithMonitorLogger sets the structured logger. Defaults to a no-op logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		m.logger = logger
	}
}
