package redis

import "errors"

var (
	// ErrFailedToParseRedisConnString indicates an invalid connection URL.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrEmptyConnectionURL indicates no connection URL was provided.
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")

	// ErrRedisNotReady indicates the server did not accept connections in time.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")

	// ErrHealthcheckFailed indicates the server did not respond to a ping.
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)
