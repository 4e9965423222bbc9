package health

import "errors"

var (
	// ErrStoreNil is returned when a monitor is created without a health store.
	ErrStoreNil = errors.New("health store is nil")

	// ErrHistorySourceNil is returned when a monitor is created without an
	// execution history source.
	ErrHistorySourceNil = errors.New("execution history source is nil")

	// ErrQueueRepositoryNil is returned when a monitor is created without a
	// queue repository.
	ErrQueueRepositoryNil = errors.New("queue repository is nil")

	// ErrMonitorAlreadyStarted is returned when Start is called twice.
	ErrMonitorAlreadyStarted = errors.New("health monitor already started")

	// ErrMonitorNotStarted is returned when Stop is called before Start.
	ErrMonitorNotStarted = errors.New("health monitor not started")

	// ErrNoHealthData indicates no health check has been recorded for a queue.
	ErrNoHealthData = errors.New("no health data recorded")
)
