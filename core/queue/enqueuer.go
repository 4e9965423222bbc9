package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueuer handles task creation with configurable defaults. Payloads are
// typed values serialized to JSON only at the storage edge.
type Enqueuer struct {
	repo            EnqueuerRepository
	defaultPriority Priority
	defaultRetries  int8
}

// NewEnqueuer creates a new Enqueuer with the given repository and options.
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultPriority: PriorityDefault,
		defaultRetries:  3,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:            repo,
		defaultPriority: options.defaultPriority,
		defaultRetries:  options.defaultRetries,
	}, nil
}

// Enqueue adds a new task of the given type to the named queue.
// The target queue must exist and be active; inactive queues reject new
// tasks with ErrQueueInactive so the caller can dead-letter or retry.
func (e *Enqueuer) Enqueue(ctx context.Context, queueName, taskType string, payload any, opts ...EnqueueOption) (*Task, error) {
	options := &enqueueOptions{
		priority:   e.defaultPriority,
		maxRetries: e.defaultRetries,
	}
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	cfg, err := e.repo.GetQueue(ctx, queueName)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrQueueInactive, queueName)
	}

	task, err := e.buildTask(queueName, taskType, payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task %q in queue %q: %w", taskType, queueName, err)
	}

	return task, nil
}

// buildTask constructs a Task from the payload and options, marshaling the
// payload and generating id and timestamps.
func (e *Enqueuer) buildTask(queueName, taskType string, payload any, options *enqueueOptions) (*Task, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
		}
		payloadBytes = b
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	return &Task{
		ID:           uuid.New(),
		Queue:        queueName,
		TaskType:     taskType,
		Priority:     options.priority,
		Payload:      payloadBytes,
		Dependencies: options.dependencies,
		Status:       TaskStatusPending,
		RetryCount:   0,
		MaxRetries:   options.maxRetries,
		ScheduledAt:  scheduledAt,
		CreatedAt:    now,
	}, nil
}
