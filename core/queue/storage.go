package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for task creation.
type EnqueuerRepository interface {
	// CreateTask stores a new pending task.
	CreateTask(ctx context.Context, task *Task) error

	// GetQueue returns the configuration of a named queue.
	// Returns ErrQueueNotFound if the queue does not exist.
	GetQueue(ctx context.Context, name string) (*QueueConfig, error)
}

// ExecutorRepository defines the interface for task claiming and result
// persistence. All mutations are single-row atomic updates keyed by task id;
// implementations must guard the pending -> running transition against
// double-dequeue (row locking or optimistic versioning on status).
type ExecutorRepository interface {
	// ClaimTask atomically claims the next eligible task of one queue:
	// status pending, all dependencies completed, scheduled_at <= now;
	// highest priority first, FIFO by scheduled_at among equal priorities.
	// Retrying tasks whose backoff has elapsed are re-admitted as pending
	// before selection. The claimed task transitions to running with
	// started_at set. Returns ErrNoTaskToClaim when nothing is eligible.
	ClaimTask(ctx context.Context, queue string) (*Task, error)

	// CompleteTask marks a running task completed and records its duration.
	CompleteTask(ctx context.Context, taskID uuid.UUID, duration time.Duration) error

	// RetryTask increments the retry count and re-admits the task with the
	// given next run time. The task passes through retrying back to an
	// eligible state.
	RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, nextRun time.Time) error

	// FailTask marks a task terminally failed with a human-readable error message.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, duration time.Duration) error
}

// QueueRepository defines the interface for queue configuration management.
type QueueRepository interface {
	// UpsertQueue creates or updates a queue configuration.
	UpsertQueue(ctx context.Context, cfg *QueueConfig) error

	// GetQueue returns the configuration of a named queue.
	GetQueue(ctx context.Context, name string) (*QueueConfig, error)

	// ListQueues returns all configured queues.
	ListQueues(ctx context.Context) ([]*QueueConfig, error)
}

// MaintenanceRepository defines the operational surface over stored tasks.
type MaintenanceRepository interface {
	// GetTask returns a task by id. Returns ErrTaskNotFound if absent.
	GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error)

	// QueueStats returns per-status task counts and average duration for one queue.
	QueueStats(ctx context.Context, queue string) (*QueueStats, error)

	// ClearCompleted removes completed tasks, scoped to one queue when queue
	// is non-empty, and returns the number of removed tasks.
	ClearCompleted(ctx context.Context, queue string) (int64, error)

	// RunningCount returns the number of tasks currently running in one queue.
	RunningCount(ctx context.Context, queue string) (int, error)

	// RequeueStale re-admits running tasks whose start time is older than
	// the given age. It covers process crashes that left tasks mid-flight;
	// the in-process timeout watchdog covers everything else. Returns the
	// number of re-admitted tasks.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Storage is a unified interface that combines all repository interfaces
// required for queue operations. Implementations of this interface can serve
// as the complete task storage backend for Executor, Enqueuer, and the
// coordinator's operational surface.
type Storage interface {
	EnqueuerRepository
	ExecutorRepository
	QueueRepository
	MaintenanceRepository
}

// ResultPublisher receives the outcome of every finished task execution.
// The event router consumes these results to fire declarative triggers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result TaskResult) error
}

// AdmissionGate gates task admission per queue. Ready is consulted before a
// task is dequeued so a suspended queue keeps its backlog intact; Allow
// registers one execution attempt once a task has actually been claimed and
// returns a completion callback that must be invoked with the outcome.
type AdmissionGate interface {
	// Ready returns ErrCircuitOpen while the queue is suspended.
	Ready(queue string) error

	// Allow admits one execution attempt for a claimed task.
	Allow(queue string) (done func(success bool), err error)
}

// ExecutionSlot limits how many executors run tasks at once across queues.
// The coordinator provides a weighted semaphore sized by its execution mode:
// one slot in sequential mode, max_concurrent_queues slots in concurrent mode.
type ExecutionSlot interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}
