package fetch

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRetries bounds retry attempts when the config leaves it unset.
const DefaultMaxRetries = 3

// BackoffPolicy computes the wait before a retry. retryCount is zero-based.
type BackoffPolicy interface {
	ExponentialBackoff(retryCount int) time.Duration
}

// RetryController wraps a fetch operation with classification of failures
// as retryable or fatal and jittered exponential backoff between attempts.
type RetryController struct {
	maxRetries int
	backoff    BackoffPolicy
	logger     *zap.Logger
}

// NewRetryController builds a controller allowing maxRetries retries
// (maxRetries+1 total attempts).
func NewRetryController(maxRetries int, backoff BackoffPolicy, logger *zap.Logger) *RetryController {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// ShouldRetry classifies an error. HTTP 429 and 5xx are transient, other
// 4xx are permanent, transport errors (timeouts, refused connections, DNS
// failures) are transient, and a canceled context is never retried.
// Unrecognized errors default to retryable.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// Bare context errors come first: context.DeadlineExceeded implements
	// net.Error, so the transport check below would misread it as a timeout.
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	// A wrapped deadline here is an attempt-level transport timeout, which
	// stays transient; the caller's own cancellation is caught by Execute.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Execute runs op, retrying transient failures with exponential backoff.
// Fatal errors propagate unchanged; once the ceiling is hit the last error
// is wrapped in *RetriesExhaustedError. At most maxRetries+1 invocations of
// op occur.
func (c *RetryController) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	totalAttempts := c.maxRetries + 1

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff.ExponentialBackoff(attempt - 1)
			c.logger.Info("retrying after backoff",
				zap.Int("retry", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Duration("delay", delay),
			)
			retriesTotal.Inc()
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("total_attempts", totalAttempts),
			zap.Error(lastErr),
		)

		if ctx.Err() != nil {
			return lastErr
		}
		if !ShouldRetry(lastErr) {
			return lastErr
		}
	}

	return &RetriesExhaustedError{Attempts: totalAttempts, Last: lastErr}
}
