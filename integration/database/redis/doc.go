// Package redis provides Redis client initialization with retry logic and a
// pub/sub implementation of the broadcast interfaces for cross-process event
// notifications.
//
// # Connection Management
//
// Connect validates the connection URL, creates a go-redis client, and
// verifies connectivity with a ping under exponential backoff:
//
//	cfg := redis.Config{ConnectionURL: os.Getenv("REDIS_URL")}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Event Broadcasting
//
// Broadcaster publishes JSON-encoded messages on a Redis channel so
// dashboard processes other than the scheduling daemon can push delivered
// events to their clients:
//
//	bc := redis.NewBroadcaster[event.Event](client, "tradepulse:events")
//	router, err := event.NewRouter(store, store, enqueuer,
//		event.WithBroadcaster(bc))
//
// Redis pub/sub is fire and forget. The event log remains the source of
// truth for delivery state; the broadcaster only carries notifications, and
// a slow subscriber drops messages rather than stalling the reader.
package redis
