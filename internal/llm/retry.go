package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"takeoff-backend/internal/shared/metrics"
	"takeoff-backend/internal/shared/telemetry"
)

// DefaultMaxAttempts bounds every model call site.
const DefaultMaxAttempts = 3

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number that just failed.
	BaseDelay time.Duration
	// Jitter adds a uniform random delay in [0, Jitter).
	Jitter   time.Duration
	Classify func(error) Class
}

// DefaultPolicy returns the policy shared by extraction and comparison.
func DefaultPolicy(base time.Duration) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   base,
		Jitter:      base / 2,
		Classify:    Classify,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return d
}

// Do runs op until it succeeds, fails fatally, or MaxAttempts is reached. It
// returns the result, the number of attempts made and the last error. onRetry
// is called before each wait.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), onRetry func(attempt int, err error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		out, err := op(ctx, attempt)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if classify(err) != ClassRetryable || attempt == maxAttempts {
			return zero, attempt, err
		}

		metrics.IncLLMRetries()
		delay := p.Delay(attempt)
		telemetry.Warn("llm.retry", map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		}
	}
	return zero, maxAttempts, lastErr
}
