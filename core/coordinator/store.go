package coordinator

import (
	"context"
	"time"

	"github.com/tradepulse/engine/core/queue"
)

// StateStore persists the coordinator's lifecycle record and heartbeat.
type StateStore interface {
	// SaveState persists the full coordinator record.
	SaveState(ctx context.Context, rec Record) error

	// LoadState returns the persisted record. Returns ErrNoState when the
	// coordinator has never run against this store.
	LoadState(ctx context.Context) (*Record, error)

	// Heartbeat updates only the heartbeat timestamp.
	Heartbeat(ctx context.Context, at time.Time) error

	// LastHeartbeat returns the most recent heartbeat timestamp. A zero time
	// means no heartbeat has been recorded.
	LastHeartbeat(ctx context.Context) (time.Time, error)
}

// HistoryStore persists per-cycle execution records for the operational
// surface and the health monitor's failure-rate window.
type HistoryStore interface {
	// RecordCycle appends one execution cycle record.
	RecordCycle(ctx context.Context, rec queue.CycleRecord) error

	// RecentCycles lists the most recent cycles, newest first, up to limit.
	// An empty queue name spans all queues.
	RecentCycles(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error)
}
