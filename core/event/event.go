package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status tracks an event's delivery lifecycle. Events are append-only: a
// delivered event is never mutated, and a failed delivery produces a retry
// attempt rather than an edit.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusDeadLettered Status = "dead_lettered"
)

// Well-known event types published by queue executors.
const (
	TypeTaskCompleted = "TASK_COMPLETED"
	TypeTaskFailed    = "TASK_FAILED"
)

// Event is an immutable fact recorded when a task reaches a notable state.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"event_type"`
	SourceQueue string          `json:"source_queue"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	RetryCount  int8            `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`

	// FailureReason records why an event was dead-lettered.
	FailureReason *string `json:"failure_reason,omitempty"`
}

// TaskEventPayload is the payload carried by TASK_COMPLETED and TASK_FAILED
// events.
type TaskEventPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	Queue      string    `json:"queue"`
	TaskType   string    `json:"task_type"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// NewEvent builds a pending event with a fresh identity. The payload must
// already be valid JSON.
func NewEvent(eventType, sourceQueue string, payload json.RawMessage) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		SourceQueue: sourceQueue,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}
