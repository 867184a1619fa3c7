package remote

import (
	"context"
	"errors"
	"time"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/syncerr"
)

// Retry policy for individual remote operations.
const (
	// retryBaseDelay is the first backoff delay; it doubles per attempt.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxAttempts bounds the total tries per operation.
	retryMaxAttempts = 4
)

// WithRetry runs fn with exponential backoff. Non-retryable error kinds
// (auth, invalid data, quota) and blob absence fail immediately; context
// cancellation stops further attempts.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	delay := retryBaseDelay

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotExist) || !syncerr.Retryable(err) {
			return err
		}
		if attempt == retryMaxAttempts {
			break
		}

		logging.Debug("retrying remote operation",
			logging.Operation(op),
			logging.Count(attempt),
			logging.Err(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
