package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests and
// single-process deployments. It keeps a bounded number of observations per
// queue, newest first.
type MemoryStore struct {
	mu      sync.RWMutex
	checks  map[string][]QueueHealthCheck
	keepPer int
}

// NewMemoryStore creates an in-memory health store keeping up to keepPer
// observations per queue.
func NewMemoryStore(keepPer int) *MemoryStore {
	if keepPer < 1 {
		keepPer = 100
	}
	return &MemoryStore{
		checks:  make(map[string][]QueueHealthCheck),
		keepPer: keepPer,
	}
}

func (s *MemoryStore) RecordHealthCheck(ctx context.Context, check QueueHealthCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]QueueHealthCheck{check}, s.checks[check.Queue]...)
	if len(history) > s.keepPer {
		history = history[:s.keepPer]
	}
	s.checks[check.Queue] = history
	return nil
}

func (s *MemoryStore) LatestHealth(ctx context.Context, queueName string) (*QueueHealthCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.checks[queueName]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHealthData, queueName)
	}
	latest := history[0]
	return &latest, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) ([]QueueHealthCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]QueueHealthCheck, 0, len(s.checks))
	for _, history := range s.checks {
		if len(history) > 0 {
			snapshot = append(snapshot, history[0])
		}
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Queue < snapshot[j].Queue })
	return snapshot, nil
}
