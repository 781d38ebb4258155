package model

import (
	"fmt"
	"log/slog"
	"time"

	"context"
)

const (
	retryAttempts = 3
	retryBase     = 2 * time.Second
)

// withRetry runs fn up to retryAttempts times with exponential backoff
// (2s, 4s) between attempts. Permanent errors abort immediately; exhausting
// the budget on transient errors yields ErrUnavailable.
func withRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBase << (attempt - 2)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !transient(err) {
			return err
		}
		logger.Warn("transient upstream error",
			"op", op, "attempt", attempt, "error", err.Error())
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, op, retryAttempts, err)
}
