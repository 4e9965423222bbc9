// Package coordinator supervises the full set of queue executors as one
// process-wide state machine: STOPPED -> STARTED -> (ERROR | STOPPED).
//
// On Start the coordinator loads its persisted record (the stored execution
// mode is the single source of truth), re-admits tasks stranded mid-flight by
// a previous crash, and spins up one executor per active queue under an
// errgroup. Executors share a weighted semaphore sized by the execution mode:
// one slot in SEQUENTIAL mode so queues take turns, max_concurrent_queues
// slots in CONCURRENT mode. Start returns only after every executor has
// signaled readiness through its ready channel.
//
// While started the coordinator refreshes a heartbeat timestamp on a fixed
// interval; the health monitor flags a stale heartbeat as CRITICAL. Every
// executor drain cycle is recorded to the execution history, which also feeds
// the monitor's rolling failure-rate window.
//
// The operational surface distinguishes three error classes: "not found"
// (queue.ErrQueueNotFound, queue.ErrTaskNotFound), "invalid state"
// (ErrAlreadyStarted, ErrNotStarted, queue.ErrAlreadyPaused,
// queue.ErrNotPaused), and internal errors, so callers can map them to
// distinct exit codes.
//
// # Usage
//
//	coord, err := coordinator.New(storage, registry, stateStore, historyStore,
//	    coordinator.WithMode(coordinator.ModeConcurrent),
//	    coordinator.WithMaxConcurrentQueues(3),
//	    coordinator.WithResultPublisher(publisher),
//	    coordinator.WithAdmissionGate(gate),
//	    coordinator.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Stop()
//
//	// Recurring work on a cron expression.
//	coord.Schedule("*/5 * * * *", "data_fetcher", "fetch_prices", payload)
package coordinator
