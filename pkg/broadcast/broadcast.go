package broadcast

import "context"

// Message wraps broadcast data for type-safe delivery.
type Message[T any] struct {
	Data T
}

// Broadcaster sends messages to multiple subscribers. Implementations must
// not let a slow consumer block delivery to the others.
type Broadcaster[T any] interface {
	// Broadcast delivers a message to all active subscribers.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Subscribe registers a new subscriber. The subscription is cleaned up
	// automatically when the context is cancelled.
	Subscribe(ctx context.Context) Subscriber[T]

	// Close shuts down the broadcaster and all subscriptions.
	Close() error
}

// Subscriber receives broadcast messages.
type Subscriber[T any] interface {
	// Receive returns the channel of incoming messages. The channel is
	// closed when the subscription ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Close cancels the subscription.
	Close() error
}
