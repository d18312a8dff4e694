package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// Policy controls the retry executor. MaxRetries counts retries beyond the
// first attempt, so an operation runs at most MaxRetries+1 times. The delay
// before retry n is min(InitialDelay * Multiplier^n, MaxDelay).
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Do runs op with exponential backoff. After each failure it consults
// retryable (nil means the default Retryable predicate); a non-retryable
// error or an exhausted budget propagates immediately with no further delay.
// The backoff sleep is cancellable: if ctx ends mid-sleep the last observed
// error is returned so the caller never sees an untyped ctx error from here.
//
// Do assumes nothing about op's side effects. Callers dispatching
// non-idempotent remote operations must either ensure idempotency upstream
// or set MaxRetries to zero.
func Do[T any](ctx context.Context, policy Policy, retryable func(error) bool, op func(context.Context) (T, error)) (T, error) {
	if retryable == nil {
		retryable = Retryable
	}

	var zero T
	var lastErr error

	// the cap applies to the first delay too
	delay := policy.InitialDelay
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries || !retryable(err) {
			return zero, err
		}

		slog.Warn("dispatch attempt failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(delay):
		}

		delay = nextDelay(delay, policy)
	}

	return zero, lastErr
}

func nextDelay(current time.Duration, policy Policy) time.Duration {
	next := time.Duration(float64(current) * policy.Multiplier)
	if next > policy.MaxDelay {
		return policy.MaxDelay
	}
	return next
}
