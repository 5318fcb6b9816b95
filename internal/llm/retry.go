package llm

import (
	"context"
	"errors"
	"time"

	"citrux/internal/logging"
)

// RetryPolicy bounds how often a provider call is attempted.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches what hosted chat APIs tolerate: five attempts,
// doubling from one second up to sixteen.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  5,
	InitialDelay: time.Second,
	MaxDelay:     16 * time.Second,
}

// Retry calls fn until it succeeds, returns a non-retryable ProviderError, or
// the attempts are used up. Errors that are not ProviderErrors are treated as
// transient transport failures.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		start := time.Now()
		out, err := fn(ctx)
		logging.DevLog("provider call finished: err=%v (attempt %d/%d, duration=%s)", err, attempt, policy.MaxAttempts, time.Since(start).Round(time.Millisecond))
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return zero, context.Canceled
		}
		if pe, ok := IsProviderError(err); ok {
			if !pe.Retryable {
				logging.ErrorLog("provider error (non-retryable): %s", pe.Error())
				return zero, err
			}
			if pe.RetryAfter != nil && *pe.RetryAfter > delay {
				delay = *pe.RetryAfter
			}
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		logging.UserLog("retrying provider call (attempt %d/%d) after %v", attempt+1, policy.MaxAttempts, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, context.Canceled
		case <-timer.C:
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return zero, lastErr
}
