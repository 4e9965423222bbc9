package event

import (
	"context"

	"github.com/google/uuid"

	"github.com/tradepulse/engine/core/queue"
)

// Store is the append-only event log. Implementations must support concurrent
// readers and single-writer-per-row updates.
type Store interface {
	// Append records a new pending event. Returns ErrEventExists if the ID is
	// already present.
	Append(ctx context.Context, evt Event) error

	// PendingEvents lists undelivered events in creation order, up to limit.
	PendingEvents(ctx context.Context, limit int) ([]Event, error)

	// MarkDelivered transitions a pending event to delivered.
	MarkDelivered(ctx context.Context, id uuid.UUID) error

	// MarkDeadLettered transitions a pending event to dead_lettered with the
	// reason recorded for inspection.
	MarkDeadLettered(ctx context.Context, id uuid.UUID, reason string) error

	// IncrementRetry bumps the event's retry counter after a failed routing
	// attempt and returns the new count.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int8, error)

	// MarkTriggerFired records that the trigger fired for the event. Returns
	// false if a marker for the (event, trigger) pair already exists, which
	// callers use to guarantee at-most-once firing under redelivery.
	MarkTriggerFired(ctx context.Context, eventID uuid.UUID, triggerID string) (bool, error)

	// GetEvent retrieves a single event by ID.
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)

	// DeadLettered lists dead-lettered events for inspection, newest first.
	DeadLettered(ctx context.Context, limit int) ([]Event, error)
}

// TriggerRepository provides the declarative routing rules the router
// evaluates against each event.
type TriggerRepository interface {
	// ActiveTriggers lists active triggers for the given event type ordered
	// by trigger priority, highest first.
	ActiveTriggers(ctx context.Context, eventType string) ([]Trigger, error)

	// UpsertTrigger creates or replaces a trigger rule.
	UpsertTrigger(ctx context.Context, trigger Trigger) error

	// GetTrigger retrieves a trigger by ID.
	GetTrigger(ctx context.Context, id string) (*Trigger, error)

	// ListTriggers lists all trigger rules.
	ListTriggers(ctx context.Context) ([]Trigger, error)
}

// TaskEnqueuer is the slice of the queue package the router needs to
// synthesize tasks for fired triggers. Satisfied by *queue.Enqueuer.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, queueName, taskType string, payload any, opts ...queue.EnqueueOption) (*queue.Task, error)
}
