package queue

import (
	"time"

	"github.com/google/uuid"
)

// EnqueuerOption is a functional option for configuring an enqueuer.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultPriority Priority
	defaultRetries  int8
}

// WithDefaultPriority sets the priority applied to tasks enqueued without one.
func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if p.Valid() {
			o.defaultPriority = p
		}
	}
}

// WithDefaultMaxRetries sets the retry budget applied to tasks enqueued without one.
func WithDefaultMaxRetries(n int8) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if n >= 0 {
			o.defaultRetries = n
		}
	}
}

// EnqueueOption is a functional option for a single enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority     Priority
	maxRetries   int8
	delay        time.Duration
	scheduledAt  *time.Time
	dependencies []uuid.UUID
}

// WithPriority sets the task priority (1-10).
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
	}
}

// WithMaxRetries sets how many times the task may be retried before it fails
// permanently.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithDelay schedules the task to become eligible after the given duration.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithScheduledAt schedules the task to become eligible at a specific time.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &t
	}
}

// WithDependencies makes the task ineligible until all listed tasks complete.
func WithDependencies(ids ...uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) {
		o.dependencies = ids
	}
}
