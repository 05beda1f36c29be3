package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mwork/payin-api/internal/pkg/metrics"
)

// RetryPolicy bounds how hard a caller tries one provider operation.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration // per attempt
	Delay       time.Duration // fixed pause between attempts
}

// DefaultRetryPolicy is three attempts of ten seconds, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Timeout: 10 * time.Second, Delay: time.Second}
}

// Single is a one-shot policy with the given timeout.
func Single(timeout time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Timeout: timeout}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made and the
// last error.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = p.attempt(ctx, fn)
		metrics.ProviderAttempts.WithLabelValues(op, outcome(lastErr)).Inc()
		if lastErr == nil {
			return attempt, nil
		}
		if !IsRetryable(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}

		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, lastErr
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && !IsRetryable(err) && !errors.Is(err, ErrProviderRejected) &&
		errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrProviderTimeout, err)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	default:
		return "failure"
	}
}
