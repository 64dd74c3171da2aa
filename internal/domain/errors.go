package domain

import (
	"errors"
	"fmt"
)

// TransientUpstreamError marks a server-side upstream failure (5xx class)
// that is safe to retry with backoff.
type TransientUpstreamError struct {
	StatusCode int
	Body       string
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("transient upstream error %d: %s", e.StatusCode, e.Body)
}

// FatalUpstreamError marks a non-retryable upstream failure (4xx class or a
// malformed response). It aborts the current scope only.
type FatalUpstreamError struct {
	StatusCode int
	Body       string
}

func (e *FatalUpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Body)
}

// ErrReportTimeout is returned when an asynchronous report does not complete
// within the wall-clock deadline. Terminal for the current window.
var ErrReportTimeout = errors.New("report generation timed out")

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientUpstreamError
	return errors.As(err, &te)
}
