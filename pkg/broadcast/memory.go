package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroadcaster is an in-process Broadcaster implementation with
// non-blocking delivery: when a subscriber's buffer is full, messages are
// dropped for that subscriber rather than blocking the broadcast.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*memorySubscriber[T]
	bufferSize  int
	closed      bool
}

// NewMemoryBroadcaster creates an in-memory broadcaster. bufferSize is the
// per-subscriber channel capacity.
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[uuid.UUID]*memorySubscriber[T]),
		bufferSize:  bufferSize,
	}
}

// Broadcast delivers the message to every active subscriber.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- msg:
		default:
			// Slow consumer: drop instead of blocking everyone else.
		}
	}
	return nil
}

// Subscribe registers a new subscriber, cleaned up when ctx is cancelled.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &memorySubscriber[T]{
		id: uuid.New(),
		ch: make(chan Message[T], b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		sub.closed = true
		return sub
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	sub.unsubscribe = func() { b.remove(sub.id) }

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return sub
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.markClosed()
		delete(b.subscribers, id)
	}
	return nil
}

func (b *MemoryBroadcaster[T]) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		sub.markClosed()
		delete(b.subscribers, id)
	}
}

type memorySubscriber[T any] struct {
	id          uuid.UUID
	ch          chan Message[T]
	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

func (s *memorySubscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *memorySubscriber[T]) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		return nil
	}
	s.markClosed()
	return nil
}

func (s *memorySubscriber[T]) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
