package server

import "errors"

var (
	// ErrServerAlreadyRunning is returned when Start is called on a running server.
	ErrServerAlreadyRunning = errors.New("server is already running")
)
