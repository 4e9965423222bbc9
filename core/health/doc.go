// Package health provides per-queue circuit breaking and periodic health
// monitoring for the scheduling engine.
//
// BreakerGate implements queue.AdmissionGate on top of sony/gobreaker: after a
// configured run of consecutive task failures the queue's breaker opens and
// the executor stops claiming new tasks while the backlog stays intact. When
// the cooldown elapses a single probe task is admitted; success closes the
// breaker, failure restarts the cooldown. A suspended queue is always retried
// after its cooldown, never abandoned.
//
// Monitor computes each queue's rolling failure rate over its recent
// execution cycles, folds in breaker state (open = CRITICAL, half-open =
// WARNING), watches the coordinator heartbeat for staleness, and persists
// QueueHealthCheck observations for the dashboard. A queue with no task
// executions in the window is UNKNOWN, not HEALTHY.
package health
