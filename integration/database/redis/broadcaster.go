package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tradepulse/engine/pkg/broadcast"
)

// Broadcaster implements broadcast.Broadcaster over Redis pub/sub so event
// notifications reach subscribers in other processes. Pub/sub is fire and
// forget: delivery guarantees stay with the event store, this transport only
// pushes wake-up notifications.
type Broadcaster[T any] struct {
	client     *redis.Client
	channel    string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*broadcasterOptions)

type broadcasterOptions struct {
	bufferSize int
	logger     *slog.Logger
}

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) BroadcasterOption {
	return func(o *broadcasterOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithLogger sets the logger for subscription errors.
func WithLogger(logger *slog.Logger) BroadcasterOption {
	return func(o *broadcasterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewBroadcaster creates a Redis pub/sub broadcaster publishing JSON-encoded
// messages on the given channel.
func NewBroadcaster[T any](client *redis.Client, channel string, opts ...BroadcasterOption) *Broadcaster[T] {
	options := &broadcasterOptions{
		bufferSize: 16,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Broadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: options.bufferSize,
		logger:     options.logger,
		subs:       make(map[*subscriber[T]]struct{}),
	}
}

// Broadcast publishes the message to the Redis channel. Subscribers across
// all processes listening on the channel receive it.
func (b *Broadcaster[T]) Broadcast(ctx context.Context, msg broadcast.Message[T]) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return broadcast.ErrBroadcasterClosed
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe opens a dedicated pub/sub connection for the subscriber, cleaned
// up when ctx is cancelled.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) broadcast.Subscriber[T] {
	sub := &subscriber[T]{
		out: make(chan broadcast.Message[T], b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		sub.closed = true
		return sub
	}
	sub.pubsub = b.client.Subscribe(ctx, b.channel)
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	go b.pump(sub)

	return sub
}

// pump decodes incoming pub/sub payloads and forwards them without blocking:
// a slow consumer drops messages rather than stalling the reader.
func (b *Broadcaster[T]) pump(sub *subscriber[T]) {
	defer func() {
		b.remove(sub)
		sub.markClosed()
	}()

	for m := range sub.pubsub.Channel() {
		var data T
		if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
			b.logger.Error("failed to decode broadcast payload",
				slog.String("channel", b.channel),
				slog.String("error", err.Error()))
			continue
		}
		select {
		case sub.out <- broadcast.Message[T]{Data: data}:
		default:
		}
	}
}

// Close shuts down the broadcaster and every subscription. The Redis client
// itself is owned by the caller and stays open.
func (b *Broadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*subscriber[T]]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.closePubSub()
	}
	return nil
}

func (b *Broadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

type subscriber[T any] struct {
	pubsub *redis.PubSub
	out    chan broadcast.Message[T]

	mu     sync.Mutex
	closed bool
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan broadcast.Message[T] {
	return s.out
}

// Close cancels the subscription. The pump goroutine closes the receive
// channel once the pub/sub connection drains.
func (s *subscriber[T]) Close() error {
	return s.closePubSub()
}

func (s *subscriber[T]) closePubSub() error {
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub.Close()
}

func (s *subscriber[T]) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
