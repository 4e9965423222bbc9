package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus tracks the lifecycle state of a task through the queue system.
// Transitions move forward only: pending -> running -> {completed | failed},
// with running -> retrying -> pending for retried failures. A completed task
// never regresses.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRetrying  TaskStatus = "retrying"
)

// Priority represents task and queue priority (1-10, higher is more important).
type Priority int8

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 3
	PriorityMedium  Priority = 5
	PriorityHigh    Priority = 8
	PriorityMax     Priority = 10
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within the allowed range (1-10).
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a unit of schedulable work. The payload is immutable after
// creation; only execution state (status, retry bookkeeping, timestamps) is
// mutated, and always through single-row atomic storage updates.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	Queue        string          `json:"queue"`
	TaskType     string          `json:"task_type"`
	Priority     Priority        `json:"priority"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Dependencies []uuid.UUID     `json:"dependencies,omitempty"`
	Status       TaskStatus      `json:"status"`
	RetryCount   int8            `json:"retry_count"`
	MaxRetries   int8            `json:"max_retries"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RetryPolicy controls how failed tasks are re-admitted.
// The delay before attempt n is InitialDelay * BackoffMultiplier^n,
// capped at MaxDelay when MaxDelay is set.
type RetryPolicy struct {
	MaxRetries        int8          `json:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay,omitempty"`
}

// DefaultRetryPolicy returns the retry policy applied to queues that do not
// configure their own: three attempts with exponential backoff starting at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      5 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Minute,
	}
}

// NextDelay computes the backoff delay for the given retry count.
func (p RetryPolicy) NextDelay(retryCount int8) time.Duration {
	delay := float64(p.InitialDelay)
	for i := int8(0); i < retryCount; i++ {
		delay *= p.BackoffMultiplier
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// QueueConfig describes a named lane of tasks sharing a concurrency limit,
// timeout budget, and retry policy. Queues are created at setup time and
// mutated only through configuration updates.
type QueueConfig struct {
	Name               string        `json:"name"`
	Kind               string        `json:"kind"`
	Priority           Priority      `json:"priority"`
	MaxConcurrentTasks int           `json:"max_concurrent_tasks"`
	Timeout            time.Duration `json:"timeout"`
	Retry              RetryPolicy   `json:"retry"`
	IsActive           bool          `json:"is_active"`
}

// QueueStats aggregates per-queue task counts for the operational surface.
type QueueStats struct {
	Queue       string        `json:"queue"`
	Pending     int           `json:"pending"`
	Running     int           `json:"running"`
	Retrying    int           `json:"retrying"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// TaskResult is the outcome of one task execution, handed to the configured
// ResultPublisher so downstream components (event routing, metrics) can react
// without the executor depending on them.
type TaskResult struct {
	TaskID      uuid.UUID     `json:"task_id"`
	Queue       string        `json:"queue"`
	TaskType    string        `json:"task_type"`
	Status      TaskStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// CycleRecord is the write-once audit record of one executor drain cycle.
type CycleRecord struct {
	ID             uuid.UUID `json:"id"`
	Queue          string    `json:"queue"`
	Mode           string    `json:"mode"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	TasksAttempted int       `json:"tasks_attempted"`
	TasksSucceeded int       `json:"tasks_succeeded"`
	TasksFailed    int       `json:"tasks_failed"`
}
