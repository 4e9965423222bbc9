package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepulse/engine/core/event"
)

// EventStore is the durable append-only event log plus trigger rules. The
// trigger_firings table's primary key is the idempotency marker that keeps
// trigger firing at-most-once under event redelivery.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a PostgreSQL-backed event store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

const eventColumns = `id, event_type, source_queue, payload, status, retry_count,
	created_at, delivered_at, failure_reason`

func scanEvent(row pgx.Row) (*event.Event, error) {
	var e event.Event
	err := row.Scan(&e.ID, &e.Type, &e.SourceQueue, &e.Payload, &e.Status,
		&e.RetryCount, &e.CreatedAt, &e.DeliveredAt, &e.FailureReason)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append records a new pending event.
func (s *EventStore) Append(ctx context.Context, evt event.Event) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO events (id, event_type, source_queue, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, evt.Type, evt.SourceQueue, evt.Payload, evt.Status, evt.RetryCount, evt.CreatedAt)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", event.ErrEventExists, evt.ID)
		}
		return err
	}
	return nil
}

// PendingEvents lists undelivered events in creation order, up to limit.
func (s *EventStore) PendingEvents(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// MarkDelivered transitions a pending event to delivered.
func (s *EventStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE events SET status = 'delivered', delivered_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", event.ErrEventNotFound, id)
	}
	return nil
}

// MarkDeadLettered transitions a pending event to dead_lettered with the
// reason recorded for inspection.
func (s *EventStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE events SET status = 'dead_lettered', failure_reason = $2
		WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", event.ErrEventNotFound, id)
	}
	return nil
}

// IncrementRetry bumps the event's retry counter and returns the new count.
func (s *EventStore) IncrementRetry(ctx context.Context, id uuid.UUID) (int8, error) {
	var count int8
	err := s.db(ctx).QueryRow(ctx, `
		UPDATE events SET retry_count = retry_count + 1
		WHERE id = $1 RETURNING retry_count`, id).Scan(&count)
	if err != nil {
		if IsNotFoundError(err) {
			return 0, fmt.Errorf("%w: %s", event.ErrEventNotFound, id)
		}
		return 0, err
	}
	return count, nil
}

// MarkTriggerFired records that the trigger fired for the event. Returns
// false when a marker for the pair already exists.
func (s *EventStore) MarkTriggerFired(ctx context.Context, eventID uuid.UUID, triggerID string) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		INSERT INTO trigger_firings (event_id, trigger_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, eventID, triggerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetEvent retrieves a single event by ID.
func (s *EventStore) GetEvent(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	evt, err := scanEvent(s.db(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", event.ErrEventNotFound, id)
		}
		return nil, err
	}
	return evt, nil
}

// DeadLettered lists dead-lettered events for inspection, newest first.
func (s *EventStore) DeadLettered(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status = 'dead_lettered' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *evt)
	}
	return out, rows.Err()
}

// ActiveTriggers lists active triggers for the given event type ordered by
// trigger priority, highest first.
func (s *EventStore) ActiveTriggers(ctx context.Context, eventType string) ([]event.Trigger, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT id, event_type, source_queue, target_queue, task_type, condition,
			priority, max_retries, is_active, metadata
		FROM event_triggers
		WHERE event_type = $1 AND is_active
		ORDER BY priority DESC, id`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// UpsertTrigger creates or replaces a trigger rule.
func (s *EventStore) UpsertTrigger(ctx context.Context, trigger event.Trigger) error {
	var condition []byte
	if trigger.Condition != nil {
		b, err := json.Marshal(trigger.Condition)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger condition: %w", err)
		}
		condition = b
	}

	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO event_triggers (id, event_type, source_queue, target_queue,
			task_type, condition, priority, max_retries, is_active, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			source_queue = EXCLUDED.source_queue,
			target_queue = EXCLUDED.target_queue,
			task_type = EXCLUDED.task_type,
			condition = EXCLUDED.condition,
			priority = EXCLUDED.priority,
			max_retries = EXCLUDED.max_retries,
			is_active = EXCLUDED.is_active,
			metadata = EXCLUDED.metadata,
			updated_at = now()`,
		trigger.ID, trigger.EventType, trigger.SourceQueue, trigger.TargetQueue,
		trigger.TaskType, condition, trigger.Priority, trigger.MaxRetries,
		trigger.IsActive, trigger.Metadata)
	return err
}

// GetTrigger retrieves a trigger by ID.
func (s *EventStore) GetTrigger(ctx context.Context, id string) (*event.Trigger, error) {
	trg, err := scanTrigger(s.db(ctx).QueryRow(ctx, `
		SELECT id, event_type, source_queue, target_queue, task_type, condition,
			priority, max_retries, is_active, metadata
		FROM event_triggers WHERE id = $1`, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", event.ErrTriggerNotFound, id)
		}
		return nil, err
	}
	return trg, nil
}

// ListTriggers lists all trigger rules.
func (s *EventStore) ListTriggers(ctx context.Context) ([]event.Trigger, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT id, event_type, source_queue, target_queue, task_type, condition,
			priority, max_retries, is_active, metadata
		FROM event_triggers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func scanTrigger(row pgx.Row) (*event.Trigger, error) {
	var (
		t         event.Trigger
		condition []byte
	)
	err := row.Scan(&t.ID, &t.EventType, &t.SourceQueue, &t.TargetQueue,
		&t.TaskType, &condition, &t.Priority, &t.MaxRetries, &t.IsActive, &t.Metadata)
	if err != nil {
		return nil, err
	}
	if len(condition) > 0 {
		t.Condition = &event.Condition{}
		if err := json.Unmarshal(condition, t.Condition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal condition for trigger %q: %w", t.ID, err)
		}
	}
	return &t, nil
}

func collectTriggers(rows pgx.Rows) ([]event.Trigger, error) {
	var out []event.Trigger
	for rows.Next() {
		trg, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *trg)
	}
	return out, rows.Err()
}
