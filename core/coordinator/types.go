package coordinator

import "time"

// State is the coordinator's process-wide lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StateStarted State = "STARTED"
	StateError   State = "ERROR"
)

// ExecutionMode controls how many queue executors may run tasks at once.
type ExecutionMode string

const (
	// ModeSequential allows a single active executor system-wide; queues take
	// turns draining.
	ModeSequential ExecutionMode = "SEQUENTIAL"

	// ModeConcurrent allows up to max_concurrent_queues executors to run in
	// parallel.
	ModeConcurrent ExecutionMode = "CONCURRENT"
)

// Valid reports whether the mode is one of the known execution modes.
func (m ExecutionMode) Valid() bool {
	return m == ModeSequential || m == ModeConcurrent
}

// Record is the persisted coordinator state. The stored execution mode is the
// single source of truth: a restart resumes in the persisted mode regardless
// of configuration defaults.
type Record struct {
	State               State         `json:"state"`
	Mode                ExecutionMode `json:"mode"`
	MaxConcurrentQueues int           `json:"max_concurrent_queues"`
	LastError           string        `json:"last_error,omitempty"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	LastHeartbeat       time.Time     `json:"last_heartbeat"`
	UpdatedAt           time.Time     `json:"updated_at"`
}
