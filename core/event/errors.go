package event

import "errors"

var (
	// ErrStoreNil is returned when a router is created without an event store.
	ErrStoreNil = errors.New("event store is nil")

	// ErrTriggerRepositoryNil is returned when a router is created without a
	// trigger repository.
	ErrTriggerRepositoryNil = errors.New("trigger repository is nil")

	// ErrEnqueuerNil is returned when a router is created without an enqueuer.
	ErrEnqueuerNil = errors.New("enqueuer is nil")

	// ErrEventNotFound indicates the requested event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventExists indicates an event with the same ID was already appended.
	ErrEventExists = errors.New("event already exists")

	// ErrTriggerNotFound indicates the requested trigger does not exist.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrInvalidCondition indicates a trigger condition that cannot be
	// evaluated against an event payload.
	ErrInvalidCondition = errors.New("invalid trigger condition")

	// ErrRouterAlreadyStarted is returned when Start is called twice.
	ErrRouterAlreadyStarted = errors.New("event router already started")

	// ErrRouterNotStarted is returned when Stop is called before Start.
	ErrRouterNotStarted = errors.New("event router not started")

	// ErrRouterNotRunning indicates a healthcheck against a stopped router.
	ErrRouterNotRunning = errors.New("event router is not running")

	// ErrHealthcheckFailed wraps the specific reason a healthcheck failed.
	ErrHealthcheckFailed = errors.New("event router healthcheck failed")
)
