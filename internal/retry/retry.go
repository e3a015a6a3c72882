// Package retry wraps a single outbound call with bounded exponential
// backoff for transient failures. It is a pure helper: no state is shared
// across invocations and the attempt count is strictly bounded.
package retry

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"syscall"
	"time"

	openailib "github.com/sashabaranov/go-openai"
)

// DefaultAttempts is the bounded attempt count used by the agent runtime.
const DefaultAttempts = 3

// sleep waits for d or until ctx is cancelled. Package variable so tests can
// run without real delays.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before retrying after the given 1-based attempt:
// 1s after the first failure, 2s after the second, 4s after the third.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

// Do executes op up to attempts times, sleeping Backoff(n) between attempts.
// Non-retryable errors are returned immediately on first occurrence; after
// the final attempt the last error propagates to the caller.
func Do[T any](ctx context.Context, attempts int, op func(context.Context) (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt < attempts {
			delay := Backoff(attempt)
			log.Printf("[Retry] Attempt %d/%d failed (%v), retrying in %v", attempt, attempts, err, delay)
			if serr := sleep(ctx, delay); serr != nil {
				return zero, serr
			}
		}
	}
	return zero, lastErr
}

// retryableStatusCodes are the HTTP statuses treated as transient:
// rate limiting and upstream gateway failures.
var retryableStatusCodes = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// Retryable reports whether err is a transient failure worth retrying:
// HTTP 429/502/503/504 from the provider, or a network-level timeout /
// connection-reset signature. Everything else (auth errors, invalid
// requests, context cancellation) fails fast.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openailib.APIError
	if errors.As(err, &apiErr) {
		return retryableStatusCodes[apiErr.HTTPStatusCode]
	}
	var reqErr *openailib.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatusCodes[reqErr.HTTPStatusCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Transport errors wrapped without a typed cause.
	msg := err.Error()
	for _, sig := range []string{"connection reset", "connection refused", "timeout", "timed out"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
