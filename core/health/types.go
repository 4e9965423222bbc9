package health

import (
	"time"

	"github.com/google/uuid"
)

// Status is the health classification of one queue (or the coordinator).
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"

	// StatusUnknown means no evidence either way: the queue has not
	// attempted any task within the monitor's history window.
	StatusUnknown Status = "UNKNOWN"
)

// QueueHealthCheck is one recorded observation of a queue's health.
// LastSuccessAt is the end of the most recent cycle in the window that
// completed at least one task; ResponseTimeMS measures the check itself.
type QueueHealthCheck struct {
	ID                  uuid.UUID  `json:"id"`
	Queue               string     `json:"queue"`
	Status              Status     `json:"status"`
	FailureRate         float64    `json:"failure_rate"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ResponseTimeMS      int64      `json:"response_time_ms"`
	Details             string     `json:"details,omitempty"`
	CheckedAt           time.Time  `json:"checked_at"`
}
