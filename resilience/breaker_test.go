package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"trailsafe/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
		SuccessThreshold: 2,
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		require.True(t, cb.AllowRequest())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.False(t, cb.AllowRequest())

	clock = clock.Add(61 * time.Second)

	assert.Equal(t, StateHalfOpen, cb.State())

	// Exactly one trial call is allowed.
	assert.True(t, cb.AllowRequest())
	assert.False(t, cb.AllowRequest())
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock = clock.Add(61 * time.Second)

	require.True(t, cb.AllowRequest())
	cb.RecordSuccess()
	require.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.AllowRequest())
	cb.RecordSuccess()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.AllowRequest())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock = clock.Add(61 * time.Second)

	require.True(t, cb.AllowRequest())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest())
}

func TestExecuteFastFailsWhenOpen(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.False(t, called, "open breaker must not invoke the call")
	assert.True(t, utils.IsCircuitOpen(err))
}

func TestExecuteFallbackServesRejections(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "with-fallback",
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Fallback:         func(error) error { return nil },
	})
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	err := cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.NoError(t, err, "fallback absorbs the failure")

	err = cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err, "fallback absorbs the rejection")
	assert.Equal(t, StateOpen, cb.State())
}
