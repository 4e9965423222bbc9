package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and
// local development. It enforces the same forward-only status transitions as
// durable backends so tests exercise real lifecycle rules.
type MemoryStorage struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]*Task
	queues map[string]*QueueConfig

	// Indexes for efficient queries
	byQueue  map[string][]uuid.UUID
	byStatus map[TaskStatus][]uuid.UUID
}

// NewMemoryStorage creates a new in-memory storage implementation.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		queues:   make(map[string]*QueueConfig),
		byQueue:  make(map[string][]uuid.UUID),
		byStatus: make(map[TaskStatus][]uuid.UUID),
	}
}

// UpsertQueue creates or updates a queue configuration.
func (ms *MemoryStorage) UpsertQueue(ctx context.Context, cfg *QueueConfig) error {
	if cfg == nil || cfg.Name == "" {
		return fmt.Errorf("queue config must have a name")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	cfgCopy := *cfg
	ms.queues[cfg.Name] = &cfgCopy
	return nil
}

// GetQueue returns the configuration of a named queue.
func (ms *MemoryStorage) GetQueue(ctx context.Context, name string) (*QueueConfig, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cfg, exists := ms.queues[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	cfgCopy := *cfg
	return &cfgCopy, nil
}

// ListQueues returns all configured queues.
func (ms *MemoryStorage) ListQueues(ctx context.Context) ([]*QueueConfig, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*QueueConfig, 0, len(ms.queues))
	for _, cfg := range ms.queues {
		cfgCopy := *cfg
		out = append(out, &cfgCopy)
	}
	return out, nil
}

// CreateTask stores a new task.
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy

	ms.byQueue[task.Queue] = append(ms.byQueue[task.Queue], task.ID)
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)

	return nil
}

// ClaimTask atomically claims the next eligible task of one queue.
//
// Retried tasks whose backoff has elapsed are first re-admitted as pending,
// so observers of the status column see retrying -> pending -> running.
// Selection: among pending tasks whose dependencies are all completed and
// scheduled_at <= now, the highest priority wins; ties break FIFO by
// earliest scheduled_at.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, queue string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()

	for _, taskID := range ms.byQueue[queue] {
		task := ms.tasks[taskID]
		if task.Status == TaskStatusRetrying && !task.ScheduledAt.After(now) {
			task.Status = TaskStatusPending
			ms.removeFromStatusIndex(taskID, TaskStatusRetrying)
			ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
		}
	}

	var best *Task

	for _, taskID := range ms.byQueue[queue] {
		task := ms.tasks[taskID]

		if task.Status != TaskStatusPending {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}
		if !ms.dependenciesMet(task) {
			continue
		}

		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	prevStatus := best.Status
	startedAt := now
	best.Status = TaskStatusRunning
	best.StartedAt = &startedAt

	ms.removeFromStatusIndex(best.ID, prevStatus)
	ms.byStatus[TaskStatusRunning] = append(ms.byStatus[TaskStatusRunning], best.ID)

	taskCopy := *best
	return &taskCopy, nil
}

// dependenciesMet reports whether every dependency of the task has completed.
// Unknown dependency ids count as unmet so a task never runs ahead of work
// that has not been stored yet.
func (ms *MemoryStorage) dependenciesMet(task *Task) bool {
	for _, depID := range task.Dependencies {
		dep, exists := ms.tasks[depID]
		if !exists || dep.Status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

// CompleteTask marks a running task as successfully completed.
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("%w: %s is %s, not running", ErrInvalidTransition, taskID, task.Status)
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.CompletedAt = &now
	task.DurationMS = duration.Milliseconds()
	task.ErrorMessage = nil

	ms.removeFromStatusIndex(taskID, TaskStatusRunning)
	ms.byStatus[TaskStatusCompleted] = append(ms.byStatus[TaskStatusCompleted], taskID)

	return nil
}

// RetryTask records a failed attempt and re-admits the task with the given
// next run time. The retry budget is a hard bound: exceeding it is an
// invalid transition, not a silent reset.
func (ms *MemoryStorage) RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, nextRun time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("%w: %s is %s, not running", ErrInvalidTransition, taskID, task.Status)
	}
	if task.RetryCount >= task.MaxRetries {
		return fmt.Errorf("%w: %s exhausted its %d retries", ErrInvalidTransition, taskID, task.MaxRetries)
	}

	task.RetryCount++
	task.Status = TaskStatusRetrying
	task.ErrorMessage = &errorMsg
	task.ScheduledAt = nextRun
	task.StartedAt = nil

	ms.removeFromStatusIndex(taskID, TaskStatusRunning)
	ms.byStatus[TaskStatusRetrying] = append(ms.byStatus[TaskStatusRetrying], taskID)

	return nil
}

// FailTask marks a task terminally failed with a human-readable message.
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, taskID, task.Status)
	}

	now := time.Now()
	prevStatus := task.Status
	task.Status = TaskStatusFailed
	task.CompletedAt = &now
	task.ErrorMessage = &errorMsg
	task.DurationMS = duration.Milliseconds()

	ms.removeFromStatusIndex(taskID, prevStatus)
	ms.byStatus[TaskStatusFailed] = append(ms.byStatus[TaskStatusFailed], taskID)

	return nil
}

// GetTask returns a task by id.
func (ms *MemoryStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	taskCopy := *task
	return &taskCopy, nil
}

// QueueStats returns per-status counts and the average completed duration
// for one queue.
func (ms *MemoryStorage) QueueStats(ctx context.Context, queue string) (*QueueStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if _, exists := ms.queues[queue]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}

	stats := &QueueStats{Queue: queue}
	var totalMS, completed int64
	for _, taskID := range ms.byQueue[queue] {
		task := ms.tasks[taskID]
		switch task.Status {
		case TaskStatusPending:
			stats.Pending++
		case TaskStatusRunning:
			stats.Running++
		case TaskStatusRetrying:
			stats.Retrying++
		case TaskStatusCompleted:
			stats.Completed++
			totalMS += task.DurationMS
			completed++
		case TaskStatusFailed:
			stats.Failed++
		}
	}
	if completed > 0 {
		stats.AvgDuration = time.Duration(totalMS/completed) * time.Millisecond
	}
	return stats, nil
}

// ClearCompleted removes completed tasks, scoped to one queue when queue is
// non-empty. Completed tasks still referenced as dependencies of live tasks
// are kept so dependency resolution stays correct.
func (ms *MemoryStorage) ClearCompleted(ctx context.Context, queue string) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	referenced := make(map[uuid.UUID]struct{})
	for _, task := range ms.tasks {
		if task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed {
			continue
		}
		for _, depID := range task.Dependencies {
			referenced[depID] = struct{}{}
		}
	}

	var removed int64
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusCompleted]) {
		task := ms.tasks[taskID]
		if queue != "" && task.Queue != queue {
			continue
		}
		if _, ok := referenced[taskID]; ok {
			continue
		}
		ms.removeFromStatusIndex(taskID, TaskStatusCompleted)
		ms.removeFromQueueIndex(taskID, task.Queue)
		delete(ms.tasks, taskID)
		removed++
	}
	return removed, nil
}

// RunningCount returns the number of tasks currently running in one queue.
func (ms *MemoryStorage) RunningCount(ctx context.Context, queue string) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	count := 0
	for _, taskID := range ms.byStatus[TaskStatusRunning] {
		if ms.tasks[taskID].Queue == queue {
			count++
		}
	}
	return count, nil
}

// RequeueStale re-admits running tasks whose start time is older than the
// given age, covering executions orphaned by a process crash.
func (ms *MemoryStorage) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var requeued int64
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusRunning]) {
		task := ms.tasks[taskID]
		if task.StartedAt == nil || task.StartedAt.After(cutoff) {
			continue
		}
		task.Status = TaskStatusPending
		task.StartedAt = nil
		task.ScheduledAt = time.Now()

		ms.removeFromStatusIndex(taskID, TaskStatusRunning)
		ms.byStatus[TaskStatusPending] = append(ms.byStatus[TaskStatusPending], taskID)
		requeued++
	}
	return requeued, nil
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

func (ms *MemoryStorage) removeFromQueueIndex(taskID uuid.UUID, queue string) {
	ms.byQueue[queue] = slices.DeleteFunc(ms.byQueue[queue], func(id uuid.UUID) bool {
		return id == taskID
	})
}
