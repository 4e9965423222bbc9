// Package broadcast provides a generic pub/sub fan-out used to push task and
// event updates to dashboard subscribers.
//
// Two interfaces define the contract:
//   - Broadcaster: delivers messages to every active subscriber
//   - Subscriber: receives broadcast messages over a channel
//
// The design allows pluggable backends (in-memory for single-process
// deployments, Redis for multi-process). Delivery is non-blocking: when a
// subscriber's buffer is full the message is dropped for that subscriber so a
// slow dashboard client can never stall the scheduler.
//
// # Usage
//
//	broadcaster := broadcast.NewMemoryBroadcaster[event.Event](100)
//	defer broadcaster.Close()
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	sub := broadcaster.Subscribe(ctx)
//	go func() {
//		for msg := range sub.Receive(ctx) {
//			render(msg.Data)
//		}
//	}()
//
//	broadcaster.Broadcast(ctx, broadcast.Message[event.Event]{Data: evt})
//
// Subscriptions are cleaned up automatically when their context is cancelled.
// All types are safe for concurrent use.
package broadcast
