package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"synccal/internal/config"
	appLog "synccal/internal/log"
	"synccal/internal/recurrence"
)

// RetryPolicy bounds how provider calls are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryPolicyFrom converts the provider retry configuration.
func RetryPolicyFrom(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		appLog.Warn("provider call failed; retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"wait", wait.String(),
			"err", err,
		)
	})
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, recurrence.ErrInvalidPattern) {
		return true
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return !t.Temporary()
	}
	return false
}
