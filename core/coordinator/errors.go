package coordinator

import "errors"

var (
	// ErrStorageNil is returned when a coordinator is created without task storage.
	ErrStorageNil = errors.New("task storage is nil")

	// ErrRegistryNil is returned when a coordinator is created without a
	// handler registry.
	ErrRegistryNil = errors.New("handler registry is nil")

	// ErrStateStoreNil is returned when a coordinator is created without a
	// state store.
	ErrStateStoreNil = errors.New("state store is nil")

	// ErrHistoryStoreNil is returned when a coordinator is created without a
	// history store.
	ErrHistoryStoreNil = errors.New("history store is nil")

	// ErrInvalidMode is returned for an unknown execution mode.
	ErrInvalidMode = errors.New("invalid execution mode")

	// ErrAlreadyStarted is returned when Start is called on a running coordinator.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrNotStarted is returned for operations that require a running coordinator.
	ErrNotStarted = errors.New("coordinator not started")

	// ErrNoActiveQueues is returned when Start finds no active queues to supervise.
	ErrNoActiveQueues = errors.New("no active queues configured")

	// ErrExecutorNotReady is returned when an executor fails to signal
	// readiness within the startup timeout.
	ErrExecutorNotReady = errors.New("executor failed to become ready")

	// ErrNoState indicates no coordinator state has been persisted yet.
	ErrNoState = errors.New("no coordinator state persisted")

	// ErrHealthcheckFailed wraps the specific reason a healthcheck failed.
	ErrHealthcheckFailed = errors.New("coordinator healthcheck failed")
)
