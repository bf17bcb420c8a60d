package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("backend resource not found")
	// ErrUnauthorized is returned for 401 responses; the caller's session is gone.
	ErrUnauthorized = errors.New("backend session expired")
	// ErrNetwork wraps transport failures (dial, timeout, reset).
	ErrNetwork = errors.New("backend unreachable")
)

// APIError is a non-2xx response other than 401 and 404.
type APIError struct {
	Status  int
	Message string
	// RetryAfter is set for 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Status)
}

// RateLimited reports whether the backend asked the caller to slow down.
func (e *APIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Temporary reports whether a retry could succeed.
func (e *APIError) Temporary() bool { return e.Status >= 500 && e.Status < 600 }

// retryable reports whether a GET may be retried after err.
func retryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}
