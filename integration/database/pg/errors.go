package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrFailedToOpenDBConnection indicates the connection pool could not be established.
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")

	// ErrEmptyConnectionString indicates no connection string was provided.
	ErrEmptyConnectionString = errors.New("empty postgres connection string, use PG_CONN_URL env var")

	// ErrFailedToParseDBConfig indicates the connection string could not be parsed.
	ErrFailedToParseDBConfig = errors.New("failed to parse db config")

	// ErrHealthcheckFailed indicates the database did not respond to a ping.
	ErrHealthcheckFailed = errors.New("healthcheck failed, connection is not available")

	// ErrFailedToApplyMigrations indicates schema migrations could not be applied.
	ErrFailedToApplyMigrations = errors.New("failed to apply migrations")
)

// IsNotFoundError reports whether err indicates an empty result set.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports whether err is a unique constraint violation.
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolationError reports whether err is a referential integrity violation.
func IsForeignKeyViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsTxClosedError reports whether err indicates usage of a finished transaction.
func IsTxClosedError(err error) bool {
	return errors.Is(err, pgx.ErrTxClosed)
}
