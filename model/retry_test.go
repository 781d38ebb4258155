package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), slog.Default(), "test", func() error {
		calls++
		if calls < 2 {
			return &apiError{status: http.StatusServiceUnavailable, body: "down"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := fmt.Errorf("%w: bad api key", ErrRejected)
	err := withRetry(context.Background(), slog.Default(), "test", func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), slog.Default(), "test", func() error {
		calls++
		return &apiError{status: http.StatusTooManyRequests, body: "rate limited"}
	})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, retryAttempts, calls)
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errc := make(chan error, 1)
	go func() {
		errc <- withRetry(ctx, slog.Default(), "test", func() error {
			calls++
			if calls == 1 {
				cancel()
			}
			return &apiError{status: http.StatusBadGateway, body: "flaky"}
		})
	}()

	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &apiError{status: 429}, true},
		{"server error", &apiError{status: 503}, true},
		{"bad request", &apiError{status: 400}, false},
		{"unauthorized", &apiError{status: 401}, false},
		{"rejected sentinel", fmt.Errorf("%w: nope", ErrRejected), false},
		{"dimension mismatch", fmt.Errorf("%w: 512 != 1024", ErrDimensionMismatch), false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("weird"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transient(tc.err))
		})
	}
}
