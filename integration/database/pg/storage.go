package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepulse/engine/core/queue"
)

// querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, letting
// storage methods participate in a caller's transaction via WithTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is the durable task storage backend. One UPDATE with a
// FOR UPDATE SKIP LOCKED subselect claims tasks, so concurrent executors
// never double-dequeue and never block each other.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage creates a PostgreSQL-backed task storage.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func (s *Storage) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

const taskColumns = `id, queue, task_type, priority, payload, dependencies, status,
	retry_count, max_retries, scheduled_at, started_at, completed_at,
	error_message, duration_ms, created_at`

func scanTask(row pgx.Row) (*queue.Task, error) {
	var t queue.Task
	err := row.Scan(&t.ID, &t.Queue, &t.TaskType, &t.Priority, &t.Payload,
		&t.Dependencies, &t.Status, &t.RetryCount, &t.MaxRetries,
		&t.ScheduledAt, &t.StartedAt, &t.CompletedAt, &t.ErrorMessage,
		&t.DurationMS, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertQueue creates or updates a queue configuration.
func (s *Storage) UpsertQueue(ctx context.Context, cfg *queue.QueueConfig) error {
	if cfg == nil || cfg.Name == "" {
		return fmt.Errorf("queue config must have a name")
	}

	retry, err := json.Marshal(cfg.Retry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry policy: %w", err)
	}

	_, err = s.db(ctx).Exec(ctx, `
		INSERT INTO queues (name, kind, priority, max_concurrent_tasks, timeout_ms, retry_policy, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			priority = EXCLUDED.priority,
			max_concurrent_tasks = EXCLUDED.max_concurrent_tasks,
			timeout_ms = EXCLUDED.timeout_ms,
			retry_policy = EXCLUDED.retry_policy,
			is_active = EXCLUDED.is_active,
			updated_at = now()`,
		cfg.Name, cfg.Kind, cfg.Priority, cfg.MaxConcurrentTasks,
		cfg.Timeout.Milliseconds(), retry, cfg.IsActive)
	return err
}

// GetQueue returns the configuration of a named queue.
func (s *Storage) GetQueue(ctx context.Context, name string) (*queue.QueueConfig, error) {
	var (
		cfg       queue.QueueConfig
		timeoutMS int64
		retry     []byte
	)
	err := s.db(ctx).QueryRow(ctx, `
		SELECT name, kind, priority, max_concurrent_tasks, timeout_ms, retry_policy, is_active
		FROM queues WHERE name = $1`, name).
		Scan(&cfg.Name, &cfg.Kind, &cfg.Priority, &cfg.MaxConcurrentTasks, &timeoutMS, &retry, &cfg.IsActive)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
		}
		return nil, err
	}

	cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if err := json.Unmarshal(retry, &cfg.Retry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry policy for queue %q: %w", name, err)
	}
	return &cfg, nil
}

// ListQueues returns all configured queues.
func (s *Storage) ListQueues(ctx context.Context) ([]*queue.QueueConfig, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT name, kind, priority, max_concurrent_tasks, timeout_ms, retry_policy, is_active
		FROM queues ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*queue.QueueConfig
	for rows.Next() {
		var (
			cfg       queue.QueueConfig
			timeoutMS int64
			retry     []byte
		)
		if err := rows.Scan(&cfg.Name, &cfg.Kind, &cfg.Priority, &cfg.MaxConcurrentTasks,
			&timeoutMS, &retry, &cfg.IsActive); err != nil {
			return nil, err
		}
		cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
		if err := json.Unmarshal(retry, &cfg.Retry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retry policy for queue %q: %w", cfg.Name, err)
		}
		out = append(out, &cfg)
	}
	return out, rows.Err()
}

// CreateTask stores a new pending task.
func (s *Storage) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}

	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO tasks (id, queue, task_type, priority, payload, dependencies,
			status, retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		task.ID, task.Queue, task.TaskType, task.Priority, task.Payload,
		task.Dependencies, task.Status, task.RetryCount, task.MaxRetries,
		task.ScheduledAt, task.CreatedAt)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", queue.ErrTaskExists, task.ID)
		}
		return err
	}
	return nil
}

// ClaimTask atomically claims the next eligible task of one queue: highest
// priority first, FIFO by scheduled time among equals. Tasks with incomplete
// or unknown dependencies are skipped.
//
// Retried tasks whose backoff has elapsed are flipped back to pending first,
// so the status column always shows retrying -> pending -> running.
func (s *Storage) ClaimTask(ctx context.Context, queueName string) (*queue.Task, error) {
	if _, err := s.db(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'pending'
		WHERE queue = $1 AND status = 'retrying' AND scheduled_at <= now()`,
		queueName); err != nil {
		return nil, err
	}

	task, err := scanTask(s.db(ctx).QueryRow(ctx, `
		UPDATE tasks SET status = 'running', started_at = now()
		WHERE id = (
			SELECT t.id FROM tasks t
			WHERE t.queue = $1
			  AND t.status = 'pending'
			  AND t.scheduled_at <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM unnest(t.dependencies) AS dep(id)
				LEFT JOIN tasks d ON d.id = dep.id
				WHERE d.id IS NULL OR d.status <> 'completed')
			ORDER BY t.priority DESC, t.scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		RETURNING `+taskColumns, queueName))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, queue.ErrNoTaskToClaim
		}
		return nil, err
	}
	return task, nil
}

// CompleteTask marks a running task completed and records its duration.
func (s *Storage) CompleteTask(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'completed', completed_at = now(),
			duration_ms = $2, error_message = NULL
		WHERE id = $1 AND status = 'running'`,
		taskID, duration.Milliseconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, taskID, "running")
	}
	return nil
}

// RetryTask increments the retry count and re-admits the task with the given
// next run time. The retry budget is a hard bound enforced in the predicate.
func (s *Storage) RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, nextRun time.Time) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'retrying', retry_count = retry_count + 1,
			error_message = $2, scheduled_at = $3, started_at = NULL
		WHERE id = $1 AND status = 'running' AND retry_count < max_retries`,
		taskID, errorMsg, nextRun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, taskID, "running with retries remaining")
	}
	return nil
}

// FailTask marks a task terminally failed with a human-readable error message.
func (s *Storage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, duration time.Duration) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'failed', completed_at = now(),
			error_message = $2, duration_ms = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		taskID, errorMsg, duration.Milliseconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, taskID, "not yet terminal")
	}
	return nil
}

// transitionError distinguishes a missing task from a task in the wrong state
// after a guarded update matched no row.
func (s *Storage) transitionError(ctx context.Context, taskID uuid.UUID, want string) error {
	var status queue.TaskStatus
	err := s.db(ctx).QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&status)
	if err != nil {
		if IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}
		return err
	}
	return fmt.Errorf("%w: %s is %s, expected %s", queue.ErrInvalidTransition, taskID, status, want)
}

// GetTask returns a task by id.
func (s *Storage) GetTask(ctx context.Context, taskID uuid.UUID) (*queue.Task, error) {
	task, err := scanTask(s.db(ctx).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	return task, nil
}

// QueueStats returns per-status task counts and average duration for one queue.
func (s *Storage) QueueStats(ctx context.Context, queueName string) (*queue.QueueStats, error) {
	if _, err := s.GetQueue(ctx, queueName); err != nil {
		return nil, err
	}

	stats := &queue.QueueStats{Queue: queueName}
	var avgMS *float64
	err := s.db(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'retrying'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			AVG(duration_ms) FILTER (WHERE status = 'completed')
		FROM tasks WHERE queue = $1`, queueName).
		Scan(&stats.Pending, &stats.Running, &stats.Retrying, &stats.Completed, &stats.Failed, &avgMS)
	if err != nil {
		return nil, err
	}
	if avgMS != nil {
		stats.AvgDuration = time.Duration(*avgMS) * time.Millisecond
	}
	return stats, nil
}

// ClearCompleted removes completed tasks, scoped to one queue when queueName
// is non-empty. Completed tasks still referenced as dependencies of live
// tasks are kept so dependency resolution stays correct.
func (s *Storage) ClearCompleted(ctx context.Context, queueName string) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		DELETE FROM tasks t
		WHERE t.status = 'completed'
		  AND ($1 = '' OR t.queue = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM tasks live
			WHERE live.status NOT IN ('completed', 'failed')
			  AND t.id = ANY(live.dependencies))`, queueName)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunningCount returns the number of tasks currently running in one queue.
func (s *Storage) RunningCount(ctx context.Context, queueName string) (int, error) {
	var count int
	err := s.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE queue = $1 AND status = 'running'`, queueName).
		Scan(&count)
	return count, err
}

// RequeueStale re-admits running tasks whose start time is older than the
// given age, covering executions orphaned by a process crash.
func (s *Storage) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tasks SET status = 'pending', started_at = NULL, scheduled_at = now()
		WHERE status = 'running' AND started_at < now() - $1::interval`,
		olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Healthcheck verifies database connectivity.
func (s *Storage) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
