package event

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tradepulse/engine/core/queue"
)

// Trigger is a declarative routing rule: when an event of Type arrives (from
// SourceQueue, if set) and Condition matches its payload, a new task of
// TaskType is enqueued into TargetQueue. Firing is at-most-once per
// (event, trigger) pair.
type Trigger struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	SourceQueue string          `json:"source_queue,omitempty"`
	TargetQueue string          `json:"target_queue"`
	TaskType    string          `json:"task_type"`
	Condition   *Condition      `json:"condition,omitempty"`
	Priority    queue.Priority  `json:"priority"`
	MaxRetries  int8            `json:"max_retries"`
	IsActive    bool            `json:"is_active"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Condition is a structured predicate evaluated statelessly against an event
// payload. All set fields must match for the condition to hold; a nil
// condition always matches.
type Condition struct {
	// TaskTypes restricts the trigger to payloads whose task_type is in the
	// set. Empty means any task type.
	TaskTypes []string `json:"task_types,omitempty"`

	// PayloadEquals requires the named top-level payload fields to equal the
	// given string values.
	PayloadEquals map[string]string `json:"payload_equals,omitempty"`
}

// Matches reports whether the condition holds for the given event. A payload
// that cannot be decoded is a configuration error, not a transient failure.
func (c *Condition) Matches(evt Event) (bool, error) {
	if c == nil {
		return true, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(evt.Payload, &fields); err != nil {
		return false, fmt.Errorf("%w: decode payload: %w", ErrInvalidCondition, err)
	}

	if len(c.TaskTypes) > 0 {
		taskType, err := stringField(fields, "task_type")
		if err != nil {
			return false, err
		}
		if !slices.Contains(c.TaskTypes, taskType) {
			return false, nil
		}
	}

	for key, want := range c.PayloadEquals {
		got, err := stringField(fields, key)
		if err != nil {
			return false, err
		}
		if got != want {
			return false, nil
		}
	}

	return true, nil
}

// appliesTo checks the static filters (event type and source queue) that do
// not require payload inspection.
func (t *Trigger) appliesTo(evt Event) bool {
	if !t.IsActive {
		return false
	}
	if t.EventType != evt.Type {
		return false
	}
	if t.SourceQueue != "" && t.SourceQueue != evt.SourceQueue {
		return false
	}
	return true
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string", ErrInvalidCondition, key)
	}
	return s, nil
}
