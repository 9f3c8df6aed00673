package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBackoff struct {
	delay time.Duration
}

func (s stubBackoff) ExponentialBackoff(int) time.Duration { return s.delay }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetryClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"status 500", &StatusError{StatusCode: http.StatusInternalServerError}, true},
		{"status 503", &StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"status 400", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"status 403", &StatusError{StatusCode: http.StatusForbidden}, false},
		{"status 404", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"wrapped status", &url.Error{Op: "Get", URL: "http://x", Err: &StatusError{StatusCode: http.StatusNotFound}}, false},
		{"net timeout", net.Error(timeoutErr{}), true},
		{"attempt timeout", &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"unknown error", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	ctrl := NewRetryController(3, stubBackoff{}, zap.NewNop())

	calls := 0
	err := ctrl.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	ctrl := NewRetryController(2, stubBackoff{delay: time.Millisecond}, zap.NewNop())

	calls := 0
	err := ctrl.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return &StatusError{URL: "http://example.com", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestExecuteFatalErrorPropagatesUnchanged(t *testing.T) {
	ctrl := NewRetryController(3, stubBackoff{delay: time.Millisecond}, zap.NewNop())

	fatal := &StatusError{URL: "http://example.com", StatusCode: http.StatusNotFound}
	calls := 0
	err := ctrl.Execute(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	require.Equal(t, 1, calls)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Same(t, fatal, se)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	ctrl := NewRetryController(2, stubBackoff{delay: time.Millisecond}, zap.NewNop())

	last := &StatusError{URL: "http://example.com", StatusCode: http.StatusBadGateway}
	calls := 0
	err := ctrl.Execute(context.Background(), func(context.Context) error {
		calls++
		return last
	})
	require.Equal(t, 3, calls)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, last)
}

func TestExecuteStopsOnCanceledContext(t *testing.T) {
	ctrl := NewRetryController(5, stubBackoff{delay: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := ctrl.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteCancellationDuringBackoff(t *testing.T) {
	ctrl := NewRetryController(3, stubBackoff{delay: time.Minute}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := ctrl.Execute(ctx, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}
