package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/tradepulse/engine/core/queue"
)

// MemoryStateStore is an in-memory StateStore for tests and single-process
// deployments.
type MemoryStateStore struct {
	mu        sync.RWMutex
	rec       *Record
	heartbeat time.Time
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) SaveState(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	s.rec = &rec
	if !rec.LastHeartbeat.IsZero() {
		s.heartbeat = rec.LastHeartbeat
	}
	return nil
}

func (s *MemoryStateStore) LoadState(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil {
		return nil, ErrNoState
	}
	rec := *s.rec
	rec.LastHeartbeat = s.heartbeat
	return &rec, nil
}

func (s *MemoryStateStore) Heartbeat(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeat = at
	return nil
}

func (s *MemoryStateStore) LastHeartbeat(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeat, nil
}

// MemoryHistoryStore is an in-memory HistoryStore keeping a bounded number of
// cycle records, newest first.
type MemoryHistoryStore struct {
	mu     sync.RWMutex
	cycles []queue.CycleRecord
	keep   int
}

// NewMemoryHistoryStore creates an in-memory history store keeping up to keep
// records.
func NewMemoryHistoryStore(keep int) *MemoryHistoryStore {
	if keep < 1 {
		keep = 1000
	}
	return &MemoryHistoryStore{keep: keep}
}

func (s *MemoryHistoryStore) RecordCycle(ctx context.Context, rec queue.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles = append([]queue.CycleRecord{rec}, s.cycles...)
	if len(s.cycles) > s.keep {
		s.cycles = s.cycles[:s.keep]
	}
	return nil
}

func (s *MemoryHistoryStore) RecentCycles(ctx context.Context, queueName string, limit int) ([]queue.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []queue.CycleRecord
	for _, rec := range s.cycles {
		if queueName != "" && rec.Queue != queueName {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
