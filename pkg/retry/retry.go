package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/metrics"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  1 * time.Minute,
	}
}

// PublishPolicy is tuned for best-effort event publishing: give up quickly
// rather than hold the caller.
func PublishPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  10 * time.Second,
	}
}

// Do retries fn with exponential backoff. Errors marked fatal through the
// error taxonomy stop the retry loop immediately; everything else is
// considered transient.
func Do(ctx context.Context, operation string, policy Policy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.MaxElapsedTime = policy.MaxElapsedTime

	var wrapped backoff.BackOff = b
	wrapped = backoff.WithContext(wrapped, ctx)
	wrapped = backoff.WithMaxRetries(wrapped, uint64(policy.MaxAttempts-1))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			metrics.RetryAttemptsTotal.WithLabelValues(operation).Inc()
		}

		err := fn()
		if err == nil {
			return nil
		}

		var appErr *pkgerrors.Error
		if errors.As(err, &appErr) && !appErr.IsRetryable() {
			return backoff.Permanent(err)
		}
		return err
	}, wrapped)
}
