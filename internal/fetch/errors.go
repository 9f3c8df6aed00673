package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEngineClosed is returned by Get/Post after Close has been called.
var ErrEngineClosed = errors.New("fetch engine is closed")

// PolicyDeniedError indicates robots.txt disallows the URL for the active
// user agent. It is fatal and never retried.
type PolicyDeniedError struct {
	URL       string
	UserAgent string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("robots.txt disallows %s for %q", e.URL, e.UserAgent)
}

// StatusError is raised when the transport succeeds but the server responds
// with a non-2xx status. The retry controller classifies it by code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status indicates a transient condition:
// 429 and all 5xx retry, every other 4xx is a permanent client-side problem.
func (e *StatusError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// RetriesExhaustedError wraps the last underlying error once the retry
// ceiling has been hit.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// IsPolicyDenied reports whether err is a robots.txt denial.
func IsPolicyDenied(err error) bool {
	var pd *PolicyDeniedError
	return errors.As(err, &pd)
}
