package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/clock"
)

// RetryPolicy bounds how a serializable transaction is retried after a
// serialization failure.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns sensible retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   20,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
	}
}

// ErrRetriesExceeded is returned when a transaction keeps losing the
// serialization race past RetryPolicy.MaxRetries attempts.
var ErrRetriesExceeded = errors.New("store: transaction retries exceeded")

// ExecTx runs fn inside a single SERIALIZABLE transaction, the guarantee
// every multi-statement coordinate or status rewrite needs to commit or
// fail atomically against concurrent ingestion writers. Serialization
// failures are retried with jittered exponential backoff; any other error
// aborts immediately.
func (s *Store) ExecTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(s.retry.InitialDelay, s.retry.MaxDelay, attempt)
			if err := clock.SleepWithContext(ctx, delay); err != nil {
				return err
			}
		}

		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}

		lastErr = err
		s.logger.Warn("retrying serialized transaction",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrRetriesExceeded, lastErr)
	}
	return ErrRetriesExceeded
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapError(err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return
		}
		err = mapError(tx.Commit())
	}()

	if bodyErr := fn(ctx, tx); bodyErr != nil {
		err = mapError(bodyErr)
		return err
	}
	return nil
}

// retryDelay returns a jittered, exponentially increasing delay.
func retryDelay(initial, max time.Duration, attempt int) time.Duration {
	half := initial / 2
	jitter := time.Duration(rand.Int63n(int64(initial))) //nolint:gosec
	delay := half + jitter

	factor := time.Duration(1)
	for i := 0; i < attempt && factor < max/initial+1; i++ {
		factor *= 2
	}
	delay *= factor
	if delay > max {
		delay = max
	}
	return delay
}
