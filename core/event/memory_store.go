package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store and TriggerRepository implementation for
// tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[uuid.UUID]*Event
	order    []uuid.UUID
	triggers map[string]*Trigger
	firings  map[firingKey]struct{}
}

type firingKey struct {
	eventID   uuid.UUID
	triggerID string
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[uuid.UUID]*Event),
		triggers: make(map[string]*Trigger),
		firings:  make(map[firingKey]struct{}),
	}
}

func (s *MemoryStore) Append(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[evt.ID]; exists {
		return fmt.Errorf("%w: %s", ErrEventExists, evt.ID)
	}

	stored := evt
	s.events[evt.ID] = &stored
	s.order = append(s.order, evt.ID)
	return nil
}

func (s *MemoryStore) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []Event
	for _, id := range s.order {
		evt := s.events[id]
		if evt.Status != StatusPending {
			continue
		}
		pending = append(pending, *evt)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, exists := s.events[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	now := time.Now()
	evt.Status = StatusDelivered
	evt.DeliveredAt = &now
	return nil
}

func (s *MemoryStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, exists := s.events[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	evt.Status = StatusDeadLettered
	evt.FailureReason = &reason
	return nil
}

func (s *MemoryStore) IncrementRetry(ctx context.Context, id uuid.UUID) (int8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, exists := s.events[id]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	evt.RetryCount++
	return evt.RetryCount, nil
}

func (s *MemoryStore) MarkTriggerFired(ctx context.Context, eventID uuid.UUID, triggerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := firingKey{eventID: eventID, triggerID: triggerID}
	if _, fired := s.firings[key]; fired {
		return false, nil
	}
	s.firings[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, exists := s.events[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	copied := *evt
	return &copied, nil
}

func (s *MemoryStore) DeadLettered(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dead []Event
	for i := len(s.order) - 1; i >= 0; i-- {
		evt := s.events[s.order[i]]
		if evt.Status != StatusDeadLettered {
			continue
		}
		dead = append(dead, *evt)
		if limit > 0 && len(dead) >= limit {
			break
		}
	}
	return dead, nil
}

func (s *MemoryStore) UpsertTrigger(ctx context.Context, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := trigger
	s.triggers[trigger.ID] = &stored
	return nil
}

func (s *MemoryStore) GetTrigger(ctx context.Context, id string) (*Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trigger, exists := s.triggers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}

	copied := *trigger
	return &copied, nil
}

func (s *MemoryStore) ActiveTriggers(ctx context.Context, eventType string) ([]Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Trigger
	for _, trigger := range s.triggers {
		if trigger.IsActive && trigger.EventType == eventType {
			matched = append(matched, *trigger)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

func (s *MemoryStore) ListTriggers(ctx context.Context) ([]Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	triggers := make([]Trigger, 0, len(s.triggers))
	for _, trigger := range s.triggers {
		triggers = append(triggers, *trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].ID < triggers[j].ID })
	return triggers, nil
}
