package resilience

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"syscall"
	"time"
)

// RetryPolicy defines deterministic retry behavior (no jitter).
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultHopPolicy is applied to a single pinned connection attempt.
var DefaultHopPolicy = RetryPolicy{
	Attempts:     2,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2,
}

// RetryWithResult executes fn with deterministic backoff until success, context
// cancellation, a non-retryable error, or retry budget exhaustion.
func RetryWithResult[T any](
	ctx context.Context,
	policy RetryPolicy,
	isRetryable func(error) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = 2
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.MaxDelay < 0 {
		policy.MaxDelay = 0
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts || !isRetryable(err) || ctx.Err() != nil {
			return zero, err
		}

		delay := policy.backoff(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (policy RetryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 || policy.InitialDelay <= 0 {
		return 0
	}
	scale := math.Pow(policy.Multiplier, float64(attempt-1))
	delay := time.Duration(float64(policy.InitialDelay) * scale)
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		return policy.MaxDelay
	}
	return delay
}

// IsTransientNetworkError reports connection-level failures worth one more attempt
// against the same address. Caller cancellation is never transient.
func IsTransientNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return opErr.Timeout()
	}
	return false
}
