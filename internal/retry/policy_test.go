package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 2 * time.Millisecond
	return p
}

func TestDefaultPolicyShape(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, 10*time.Second, p.MaxInterval)
	assert.Greater(t, p.RandomizationFactor, 0.0)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var waits []time.Duration
	boom := errors.New("connection reset")

	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestDoNeverWaitsPastMaxInterval(t *testing.T) {
	p := Policy{
		MaxAttempts:         10,
		InitialInterval:     time.Millisecond,
		MaxInterval:         10 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}

	var waits []time.Duration
	err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("connection reset")
	}, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	})

	require.Error(t, err)
	require.Len(t, waits, 9)
	for i, wait := range waits {
		assert.LessOrEqual(t, wait, p.MaxInterval, "wait %d", i)
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("eof")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursRetryablePredicate(t *testing.T) {
	permanent := errors.New("bad request template")
	p := fastPolicy()
	p.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, nil)

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryable(t *testing.T) {
	assert.True(t, DefaultRetryable(errors.New("x")))
	assert.True(t, DefaultRetryable(context.DeadlineExceeded))
	assert.False(t, DefaultRetryable(context.Canceled))
}
