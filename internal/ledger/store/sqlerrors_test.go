package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapErrorClassifiesSerializationFailure(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	mapped := mapError(pgErr)

	if !isRetryable(mapped) {
		t.Fatalf("expected serialization failure to be retryable, got %v", mapped)
	}
}

func TestMapErrorClassifiesDeadlock(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	if !isRetryable(mapError(pgErr)) {
		t.Fatal("expected deadlock to be retryable")
	}
}

func TestMapErrorPassesThroughOtherCodes(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	mapped := mapError(pgErr)
	if isRetryable(mapped) {
		t.Fatal("expected unique violation not to be retryable")
	}
	if !errors.Is(mapped, pgErr) {
		t.Fatalf("expected unique violation error to pass through unchanged, got %v", mapped)
	}
}

func TestMapErrorMatchesPlainStringMessages(t *testing.T) {
	mapped := mapError(errors.New("ERROR: could not serialize access due to concurrent update"))
	if !isRetryable(mapped) {
		t.Fatal("expected plain-string serialization message to be retryable")
	}
}

func TestMapErrorNil(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("expected nil error to map to nil")
	}
}

func TestRetryDelayNeverExceedsMax(t *testing.T) {
	policy := DefaultRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		d := retryDelay(policy.InitialDelay, policy.MaxDelay, attempt)
		if d > policy.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds max %v", attempt, d, policy.MaxDelay)
		}
		if d < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, d)
		}
	}
}
