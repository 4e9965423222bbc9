package health

import (
	"context"
	"time"

	"github.com/tradepulse/engine/core/queue"
)

// Store persists health check observations.
type Store interface {
	// RecordHealthCheck appends one observation.
	RecordHealthCheck(ctx context.Context, check QueueHealthCheck) error

	// LatestHealth returns the most recent observation for one queue.
	// Returns ErrNoHealthData when none has been recorded.
	LatestHealth(ctx context.Context, queueName string) (*QueueHealthCheck, error)

	// Snapshot returns the most recent observation per queue.
	Snapshot(ctx context.Context) ([]QueueHealthCheck, error)
}

// HistorySource exposes recent execution cycles for failure-rate computation.
// Satisfied by the coordinator's history store.
type HistorySource interface {
	// RecentCycles lists the most recent execution cycles of one queue,
	// newest first, up to limit.
	RecentCycles(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error)
}

// HeartbeatSource exposes the coordinator's last heartbeat so the monitor can
// flag a stalled coordinator.
type HeartbeatSource interface {
	LastHeartbeat(ctx context.Context) (time.Time, error)
}
