package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryReturnsLastErrorAfterExhaustion(t *testing.T) {
	last := errors.New("final failure")
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(2), func(context.Context) error {
		attempts++
		return last
	})

	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Equal(t, last, err)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := RetryWithBackoff(ctx, fastRetryConfig(5), func(context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWrapComposesBreakerAndRetry(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "wrapped",
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})
	cb.now = func() time.Time { return clock }

	calls := 0
	wrapped := Wrap(func(context.Context) error {
		calls++
		return errors.New("down")
	}, cb, fastRetryConfig(1), 50*time.Millisecond)

	// Each wrapped call exhausts its retry budget and counts as one breaker
	// failure.
	require.Error(t, wrapped(context.Background()))
	assert.Equal(t, 2, calls)
	require.Error(t, wrapped(context.Background()))
	assert.Equal(t, StateOpen, cb.State())

	// Fast fail without invoking the underlying call.
	require.Error(t, wrapped(context.Background()))
	assert.Equal(t, 4, calls)
}
