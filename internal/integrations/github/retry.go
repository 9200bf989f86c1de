// Package github implements the hosting-API interface against the GitHub
// REST API using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/google/go-github/v60/github"
)

// RetryConfig holds configuration for exponential backoff retry.
type RetryConfig struct {
	MaxRetries  int           // Maximum number of retry attempts (default: 4)
	BaseDelay   time.Duration // Initial delay before first retry (default: 1s)
	MaxDelay    time.Duration // Maximum delay cap (default: 30s)
	JitterRatio float64       // Jitter as fraction of delay, 0.0-1.0 (default: 0.25)
}

// DefaultRetryConfig returns sensible defaults for GitHub API retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  4,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		JitterRatio: 0.25,
	}
}

// isRetryableError reports whether err is a transient GitHub API error that
// warrants a retry. It uses typed checking rather than string matching:
//   - rate limiting is checked via *github.RateLimitError and
//     *github.AbuseRateLimitError
//   - server errors are checked via *github.ErrorResponse (HTTP 5xx)
//   - network failures and timeouts are checked via net.Error and the
//     context deadline sentinel
//
// Client errors (4xx other than 429) are not retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == 429 || (code >= 500 && code < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// withRetry executes fn with exponential backoff. It retries only on
// transient errors. Non-retryable errors are returned immediately so
// callers see them without unnecessary delay.
func withRetry[T any](ctx context.Context, cfg RetryConfig, operation string, fn func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		// Don't retry non-transient errors.
		if !isRetryableError(err) {
			return zero, err
		}

		// Exhausted retries.
		if attempt == cfg.MaxRetries {
			return zero, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
		}

		// Calculate delay: base * 2^attempt, add jitter, then cap.
		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		if cfg.JitterRatio > 0 {
			delay += time.Duration(rand.Float64() * cfg.JitterRatio * float64(delay))
		}
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		// Wait or bail if context is cancelled.
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
			// continue to next attempt
		}
	}

	return zero, fmt.Errorf("%s: retry loop exited unexpectedly", operation)
}
