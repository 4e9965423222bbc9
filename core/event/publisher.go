package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tradepulse/engine/core/queue"
)

// waker is anything that can be nudged after an event is appended. Satisfied
// by *Router.
type waker interface {
	Wake()
}

// TaskResultPublisher bridges queue executors to the event store: every task
// result is appended as a TASK_COMPLETED or TASK_FAILED event and the router
// is woken so triggers fire without waiting for the next poll tick.
type TaskResultPublisher struct {
	store Store
	waker waker
}

var _ queue.ResultPublisher = (*TaskResultPublisher)(nil)

// NewTaskResultPublisher creates a publisher writing to the given store. The
// waker is optional; pass nil to rely on the router's polling alone.
func NewTaskResultPublisher(store Store, w waker) (*TaskResultPublisher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	return &TaskResultPublisher{store: store, waker: w}, nil
}

// PublishResult appends the task result to the event log.
func (p *TaskResultPublisher) PublishResult(ctx context.Context, result queue.TaskResult) error {
	eventType := TypeTaskCompleted
	if result.Status == queue.TaskStatusFailed {
		eventType = TypeTaskFailed
	}

	payload, err := json.Marshal(TaskEventPayload{
		TaskID:     result.TaskID,
		Queue:      result.Queue,
		TaskType:   result.TaskType,
		Error:      result.Error,
		DurationMS: result.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshal task event payload: %w", err)
	}

	if err := p.store.Append(ctx, NewEvent(eventType, result.Queue, payload)); err != nil {
		return fmt.Errorf("append task event: %w", err)
	}

	if p.waker != nil {
		p.waker.Wake()
	}
	return nil
}
