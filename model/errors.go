package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrUnavailable marks a transient upstream failure that survived the
	// retry budget. Callers map it to a 503-style outcome.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrRejected marks a permanent failure: bad credentials, malformed
	// input, or a content-policy reject. Never retried.
	ErrRejected = errors.New("upstream rejected request")

	// ErrDimensionMismatch means the provider returned vectors of a
	// different size than the pipeline is configured for. This is a fatal
	// configuration error, not retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// apiError is a non-2xx response from a provider.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// transient reports whether an error is worth retrying: network timeouts,
// rate limiting, and 5xx responses. Auth and malformed-input failures are not.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	var api *apiError
	if errors.As(err, &api) {
		return api.status == http.StatusTooManyRequests ||
			api.status == http.StatusRequestTimeout ||
			api.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
