// Package resilience wraps external channel calls with circuit breaking and
// retry-with-backoff. Breakers are long-lived, one per external dependency,
// shared across calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"trailsafe/utils"

	"github.com/sirupsen/logrus"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig tunes one circuit breaker instance.
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	ResetTimeout     time.Duration // time open before allowing a trial
	HalfOpenMaxCalls int           // trial calls allowed while half-open
	SuccessThreshold int           // consecutive successes to close again
	Fallback         func(error) error
}

// DefaultBreakerConfig returns sane defaults for a notification channel.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker guards one external dependency. State transitions are
// atomic per instance.
type CircuitBreaker struct {
	mu     sync.Mutex
	config BreakerConfig

	state            string
	consecutiveFails int
	consecutiveOKs   int
	halfOpenInFlight int
	openedAt         time.Time

	now func() time.Time // overridable in tests
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// State returns the current state, auto-transitioning open to half-open once
// the reset timeout has elapsed.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// AllowRequest reports whether a call may proceed, reserving a half-open
// trial slot when applicable.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.config.HalfOpenMaxCalls {
			cb.halfOpenInFlight++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess registers a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFails = 0
	case StateHalfOpen:
		cb.halfOpenInFlight--
		cb.consecutiveOKs++
		if cb.consecutiveOKs >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure registers a failed call. A single half-open failure reopens
// the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenInFlight--
		cb.transitionTo(StateOpen)
	}
}

// Execute runs fn under the breaker. Rejected or failing calls are served by
// the fallback when one is configured.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.AllowRequest() {
		if cb.config.Fallback != nil {
			return cb.config.Fallback(utils.ErrCircuitOpen)
		}
		return utils.ErrCircuitOpen
	}

	err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		if cb.config.Fallback != nil {
			return cb.config.Fallback(err)
		}
		return err
	}

	cb.RecordSuccess()
	return nil
}

// maybeHalfOpen transitions open to half-open once the reset timeout has
// elapsed. Caller holds the lock.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.transitionTo(StateHalfOpen)
	}
}

// transitionTo moves to a new state and resets the counters that belong to
// it. Caller holds the lock.
func (cb *CircuitBreaker) transitionTo(state string) {
	if cb.state == state {
		return
	}

	logrus.Infof("Circuit breaker %s: %s -> %s", cb.config.Name, cb.state, state)
	cb.state = state

	switch state {
	case StateOpen:
		cb.openedAt = cb.now()
		cb.consecutiveOKs = 0
		cb.halfOpenInFlight = 0
	case StateHalfOpen:
		cb.consecutiveOKs = 0
		cb.halfOpenInFlight = 0
	case StateClosed:
		cb.consecutiveFails = 0
		cb.consecutiveOKs = 0
		cb.halfOpenInFlight = 0
	}
}
