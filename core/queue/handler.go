package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type (
	// Handler defines the interface for task processors.
	// All task handlers must implement Name() to identify the task type
	// and Handle() to process the task payload. Handlers must honor context
	// cancellation: the executor enforces the queue timeout with a watchdog
	// and discards results arriving after it fires.
	Handler interface {
		// Name returns the task type this handler processes.
		Name() string
		// Handle processes the task with the given payload.
		// The payload is provided as raw JSON and must be unmarshaled by the handler.
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// TaskHandlerFunc is a type-safe handler function.
	// The generic type T represents the expected payload structure.
	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewTaskHandler creates a type-safe handler for the given task type.
// The handler function receives a strongly-typed payload unmarshaled
// from the task's raw JSON.
func NewTaskHandler[T any](taskType string, handler TaskHandlerFunc[T]) Handler {
	return &typedHandler[T]{
		name:    taskType,
		handler: handler,
	}
}

type typedHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string {
	return h.name
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("failed to unmarshal payload for task type %q: %w", h.name, err)
		}
	}
	return h.handler(ctx, t)
}

// Registry maps task types to their handlers. Handlers are registered before
// the coordinator starts; an unregistered task type is a configuration error
// surfaced at startup by Validate, not a runtime crash.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler to the registry. Registering a second handler for
// the same task type is a configuration error.
func (r *Registry) Register(handler Handler) error {
	if handler == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[handler.Name()]; exists {
		return fmt.Errorf("handler already registered for task type %q", handler.Name())
	}
	r.handlers[handler.Name()] = handler
	return nil
}

// RegisterAll adds multiple handlers to the registry.
func (r *Registry) RegisterAll(handlers ...Handler) error {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the handler for the given task type.
func (r *Registry) Get(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Validate checks that every task type in the given list has a registered
// handler, making missing handlers a load-time error.
func (r *Registry) Validate(taskTypes ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range taskTypes {
		if _, ok := r.handlers[t]; !ok {
			return fmt.Errorf("%w: %q", ErrHandlerNotFound, t)
		}
	}
	return nil
}
