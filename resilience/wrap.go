package resilience

import (
	"context"
	"time"
)

// CallFunc is one external call wrapped by the resilience layer.
type CallFunc func(context.Context) error

// WithCircuitBreaker composes fn with a breaker at the call site.
func WithCircuitBreaker(fn CallFunc, breaker *CircuitBreaker) CallFunc {
	return func(ctx context.Context) error {
		return breaker.Execute(ctx, fn)
	}
}

// WithRetry composes fn with retry-with-backoff.
func WithRetry(fn CallFunc, config RetryConfig) CallFunc {
	return func(ctx context.Context) error {
		return RetryWithBackoff(ctx, config, fn)
	}
}

// WithTimeout bounds each invocation of fn. Keeps a slow channel from
// delaying the rest of a broadcast fan-out.
func WithTimeout(fn CallFunc, timeout time.Duration) CallFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx)
	}
}

// Wrap applies the standard channel stack: per-call timeout, retries inside
// the breaker so an exhausted retry budget counts as one breaker failure.
func Wrap(fn CallFunc, breaker *CircuitBreaker, retry RetryConfig, timeout time.Duration) CallFunc {
	return WithCircuitBreaker(WithRetry(WithTimeout(fn, timeout), retry), breaker)
}
