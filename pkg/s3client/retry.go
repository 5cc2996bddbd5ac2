package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/aws/smithy-go"
)

const (
	DefaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second
)

type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration // per attempt, 0 disables
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// runs out of attempts. Each attempt gets its own timeout-bound context;
// fn must not use that context after returning.
func withRetry[T any](ctx context.Context, p retryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		output, err := runAttempt(ctx, p.timeout, fn)
		if err == nil {
			return output, nil
		}

		if ctx.Err() != nil || !isRetryableError(err) {
			return zero, err
		}

		lastErr = err
		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.calculateDelay(attempt)):
			}
		}
	}
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException", "InternalError":
			return true
		}
		// Retry on 5xx errors
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code >= 500 && code < 600
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// calculateDelay calculates the retry delay with exponential backoff and jitter
func (p retryPolicy) calculateDelay(attempt int) time.Duration {
	base := float64(p.baseDelay)
	delay := base * math.Pow(2.0, float64(attempt))

	// Add jitter (±25%)
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}

	return time.Duration(delay)
}
