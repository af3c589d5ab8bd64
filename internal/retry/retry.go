package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/amishk599/autoapply/internal/model"
)

// Policy configures retries of transient failures with exponential backoff and jitter.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int
	// BaseDelay is the delay before the first retry, doubled on each subsequent retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep. Zero means no cap.
	MaxDelay time.Duration
	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// Do runs fn, retrying transient errors. It returns the last error once the
// attempts are exhausted or a non-retryable error is seen. Backoff sleeps
// suspend only the calling goroutine and end early on ctx cancellation.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil || !retryable(err) {
		return v, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		if p.Logger != nil {
			p.Logger.Warn("retrying after transient error",
				"op", op,
				"attempt", attempt,
				"max_retries", p.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return v, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// IsTransient returns true if the error represents a transient failure worth retrying.
// Do stops on the caller's own cancellation before consulting it, so a
// deadline seen here belongs to a single request (http.Client.Timeout).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch model.KindOf(err) {
	case model.KindTransientNetwork, model.KindProviderUnavailable:
		return true
	case "":
	default:
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests: retryable.
		if httpErr.StatusCode == 429 {
			return true
		}
		// 5xx: retryable.
		if httpErr.StatusCode >= 500 {
			return true
		}
		// 4xx (not 429): not retryable.
		return false
	}

	// Non-HTTP errors (network, DNS, etc.): retryable.
	return true
}
