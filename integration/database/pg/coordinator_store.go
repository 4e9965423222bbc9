package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepulse/engine/core/coordinator"
	"github.com/tradepulse/engine/core/queue"
)

// StateStore persists the coordinator record in a single-row table so the
// stored execution mode survives restarts.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a PostgreSQL-backed coordinator state store.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

func (s *StateStore) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// SaveState persists the full coordinator record.
func (s *StateStore) SaveState(ctx context.Context, rec coordinator.Record) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO coordinator_state (id, state, mode, max_concurrent_queues,
			last_error, started_at, last_heartbeat, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			mode = EXCLUDED.mode,
			max_concurrent_queues = EXCLUDED.max_concurrent_queues,
			last_error = EXCLUDED.last_error,
			started_at = EXCLUDED.started_at,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at`,
		rec.State, rec.Mode, rec.MaxConcurrentQueues, rec.LastError,
		rec.StartedAt, rec.LastHeartbeat, rec.UpdatedAt)
	return err
}

// LoadState returns the persisted record, or ErrNoState on first run.
func (s *StateStore) LoadState(ctx context.Context) (*coordinator.Record, error) {
	var rec coordinator.Record
	err := s.db(ctx).QueryRow(ctx, `
		SELECT state, mode, max_concurrent_queues, last_error, started_at, last_heartbeat, updated_at
		FROM coordinator_state WHERE id`).
		Scan(&rec.State, &rec.Mode, &rec.MaxConcurrentQueues, &rec.LastError,
			&rec.StartedAt, &rec.LastHeartbeat, &rec.UpdatedAt)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, coordinator.ErrNoState
		}
		return nil, err
	}
	return &rec, nil
}

// Heartbeat updates only the heartbeat timestamp.
func (s *StateStore) Heartbeat(ctx context.Context, at time.Time) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE coordinator_state SET last_heartbeat = $1 WHERE id`, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return coordinator.ErrNoState
	}
	return nil
}

// LastHeartbeat returns the most recent heartbeat timestamp; zero when the
// coordinator has never run.
func (s *StateStore) LastHeartbeat(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := s.db(ctx).QueryRow(ctx,
		`SELECT last_heartbeat FROM coordinator_state WHERE id`).Scan(&at)
	if err != nil {
		if IsNotFoundError(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return at, nil
}

// HistoryStore persists per-cycle execution records.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a PostgreSQL-backed execution history store.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

func (s *HistoryStore) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// RecordCycle appends one execution cycle record.
func (s *HistoryStore) RecordCycle(ctx context.Context, rec queue.CycleRecord) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO execution_history (id, queue, mode, started_at, ended_at,
			tasks_attempted, tasks_succeeded, tasks_failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Queue, rec.Mode, rec.StartedAt, rec.EndedAt,
		rec.TasksAttempted, rec.TasksSucceeded, rec.TasksFailed)
	if err != nil {
		return fmt.Errorf("failed to record execution cycle for queue %q: %w", rec.Queue, err)
	}
	return nil
}

// RecentCycles lists the most recent cycles, newest first, up to limit. An
// empty queue name spans all queues.
func (s *HistoryStore) RecentCycles(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT id, queue, mode, started_at, ended_at, tasks_attempted, tasks_succeeded, tasks_failed
		FROM execution_history
		WHERE $1 = '' OR queue = $1
		ORDER BY started_at DESC LIMIT $2`, queueName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.CycleRecord
	for rows.Next() {
		var rec queue.CycleRecord
		if err := rows.Scan(&rec.ID, &rec.Queue, &rec.Mode, &rec.StartedAt, &rec.EndedAt,
			&rec.TasksAttempted, &rec.TasksSucceeded, &rec.TasksFailed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
