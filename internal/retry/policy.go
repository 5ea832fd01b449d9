package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how a single operation is retried.
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// Retryable decides whether err warrants another attempt. Nil means DefaultRetryable.
	Retryable func(err error) bool
}

// DefaultPolicy is three attempts with jittered exponential backoff from 1s capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// Notify is invoked before each wait with the error that caused it.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, the attempt budget is spent, a non-retryable error
// occurs, or ctx ends. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}

	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx), onRetry)
}

// cappedBackOff clamps jittered waits to the configured ceiling.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c cappedBackOff) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next != backoff.Stop && next > c.max {
		return c.max
	}
	return next
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.RandomizationFactor >= 0 {
		b.RandomizationFactor = p.RandomizationFactor
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return cappedBackOff{BackOff: b, max: b.MaxInterval}
}

// DefaultRetryable retries every error except cancellation. Transport timeouts
// surface as deadline errors and stay retryable.
func DefaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled)
}
