package broadcast

import "errors"

var (
	// ErrBroadcasterClosed is returned when broadcasting on a closed broadcaster.
	ErrBroadcasterClosed = errors.New("broadcaster is closed")

	// ErrSubscriberClosed indicates a closed subscriber; custom backends may
	// return it where the in-memory implementation returns nil.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)
