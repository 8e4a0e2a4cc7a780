package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSerialization wraps a database error that signals the transaction lost
// a serializability race and should be retried from the top.
type ErrSerialization struct {
	Err error
}

func (e *ErrSerialization) Error() string { return "serialization failure: " + e.Err.Error() }
func (e *ErrSerialization) Unwrap() error { return e.Err }

// postgresErrMsgs catches serialization failures that arrive as plain
// strings instead of a typed *pgconn.PgError (e.g. through a connection
// pooler that flattens errors).
var postgresErrMsgs = []string{
	"could not serialize access",
	"current transaction is aborted",
	"deadlock detected",
	"commit unexpectedly resulted in rollback",
}

// mapError classifies a raw database/sql error, tagging serialization
// failures so the transaction executor knows to retry.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.InFailedSQLTransaction:
			return &ErrSerialization{Err: err}
		}
		return err
	}

	msg := err.Error()
	for _, needle := range postgresErrMsgs {
		if strings.Contains(msg, needle) {
			return &ErrSerialization{Err: err}
		}
	}
	return err
}

// isRetryable reports whether err should trigger a transaction retry.
func isRetryable(err error) bool {
	var serErr *ErrSerialization
	return errors.As(err, &serErr)
}
