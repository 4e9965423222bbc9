package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepulse/engine/core/health"
)

// HealthStore persists queue health observations.
type HealthStore struct {
	pool *pgxpool.Pool
}

// NewHealthStore creates a PostgreSQL-backed health check store.
func NewHealthStore(pool *pgxpool.Pool) *HealthStore {
	return &HealthStore{pool: pool}
}

func (s *HealthStore) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// RecordHealthCheck appends one observation.
func (s *HealthStore) RecordHealthCheck(ctx context.Context, check health.QueueHealthCheck) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO queue_health_checks (id, queue, status, failure_rate,
			consecutive_failures, last_success_at, response_time_ms, details, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		check.ID, check.Queue, check.Status, check.FailureRate,
		check.ConsecutiveFailures, check.LastSuccessAt, check.ResponseTimeMS,
		check.Details, check.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to record health check for queue %q: %w", check.Queue, err)
	}
	return nil
}

// LatestHealth returns the most recent observation for one queue.
func (s *HealthStore) LatestHealth(ctx context.Context, queueName string) (*health.QueueHealthCheck, error) {
	check, err := scanHealthCheck(s.db(ctx).QueryRow(ctx, `
		SELECT id, queue, status, failure_rate, consecutive_failures,
			last_success_at, response_time_ms, details, checked_at
		FROM queue_health_checks
		WHERE queue = $1 ORDER BY checked_at DESC LIMIT 1`, queueName))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", health.ErrNoHealthData, queueName)
		}
		return nil, err
	}
	return check, nil
}

// Snapshot returns the most recent observation per queue.
func (s *HealthStore) Snapshot(ctx context.Context) ([]health.QueueHealthCheck, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT DISTINCT ON (queue) id, queue, status, failure_rate,
			consecutive_failures, last_success_at, response_time_ms, details, checked_at
		FROM queue_health_checks
		ORDER BY queue, checked_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []health.QueueHealthCheck
	for rows.Next() {
		check, err := scanHealthCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *check)
	}
	return out, rows.Err()
}

func scanHealthCheck(row pgx.Row) (*health.QueueHealthCheck, error) {
	var c health.QueueHealthCheck
	err := row.Scan(&c.ID, &c.Queue, &c.Status, &c.FailureRate,
		&c.ConsecutiveFailures, &c.LastSuccessAt, &c.ResponseTimeMS,
		&c.Details, &c.CheckedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
