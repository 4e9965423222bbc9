package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a component is constructed without a storage backend.
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when enqueueing a task without a payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when a priority is outside the 1-10 range.
	ErrInvalidPriority = errors.New("priority must be between 1 and 10")

	// ErrQueueNotFound is returned when a named queue does not exist.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrQueueInactive is returned when enqueueing into a deactivated queue.
	ErrQueueInactive = errors.New("queue is not active")

	// ErrTaskNotFound is returned when a task id does not exist in storage.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task whose id is already stored.
	ErrTaskExists = errors.New("task already exists")

	// ErrNoTaskToClaim is returned by ClaimTask when no eligible task is available.
	ErrNoTaskToClaim = errors.New("no task to claim")

	// ErrInvalidTransition is returned when a status update would move
	// a task backwards through its lifecycle.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrHandlerNotFound is returned when no handler is registered for a task type.
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when starting an executor with an empty registry.
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrTaskTimeout is recorded when a handler exceeds the queue's timeout budget.
	ErrTaskTimeout = errors.New("task execution timed out")

	// ErrCircuitOpen signals that the queue's circuit breaker is rejecting
	// new admissions. It is a backpressure signal, not a task failure.
	ErrCircuitOpen = errors.New("queue circuit breaker is open")

	// ErrAlreadyPaused is returned when pausing a queue that is already paused.
	ErrAlreadyPaused = errors.New("queue is already paused")

	// ErrNotPaused is returned when resuming a queue that is not paused.
	ErrNotPaused = errors.New("queue is not paused")

	// ErrExecutorNotRunning is returned by Healthcheck when the executor loop is stopped.
	ErrExecutorNotRunning = errors.New("executor is not running")

	// ErrHealthcheckFailed wraps executor health failures for errors.Is checks.
	ErrHealthcheckFailed = errors.New("healthcheck failed")
)
