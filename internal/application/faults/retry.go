package faults

import (
	"context"
	"time"

	domain "daybrief/internal/domain/faults"
)

// Retry runs op up to maxAttempts times, recording one event per failed
// attempt and sleeping with exponential backoff (base 2, capped) between
// attempts. On the final failure it returns fallback when provided,
// otherwise the terminal error. Escalation is only considered for the final
// attempt's event.
func Retry[T any](r *Registry, component string, maxAttempts int, sev domain.Severity, op func() (T, error), fallback *T) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		final := attempt == maxAttempts
		r.record(component, KindOf(err), err, sev, map[string]any{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}, attempt, final)
		if final {
			if fallback != nil {
				r.logger.Warn("returning fallback after exhausted retries", "component", component, "attempts", maxAttempts)
				return *fallback, nil
			}
			return zero, err
		}
		time.Sleep(r.backoff(attempt))
	}
	return zero, nil // unreachable
}

// RetryContext applies the same policy as Retry but suspends on the context
// during backoff instead of blocking, and aborts when ctx is done.
func RetryContext[T any](ctx context.Context, r *Registry, component string, maxAttempts int, sev domain.Severity, op func(context.Context) (T, error), fallback *T) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		final := attempt == maxAttempts
		r.record(component, KindOf(err), err, sev, map[string]any{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}, attempt, final)
		if final {
			if fallback != nil {
				r.logger.Warn("returning fallback after exhausted retries", "component", component, "attempts", maxAttempts)
				return *fallback, nil
			}
			return zero, err
		}
		timer := time.NewTimer(r.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, nil // unreachable
}

// backoff returns 2^(attempt-1) backoff units capped at maxBackoffUnits
func (r *Registry) backoff(attempt int) time.Duration {
	units := 1 << (attempt - 1)
	if units > maxBackoffUnits {
		units = maxBackoffUnits
	}
	return time.Duration(units) * r.backoffUnit
}
