package utils

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket allowing rate requests per period with
// bursts capped at rate.
type RateLimiter struct {
	rate       int
	period     time.Duration
	tokens     int
	lastRefill time.Time
	mutex      sync.Mutex
}

func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		period:     period,
		tokens:     rate,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	refill := int(elapsed.Nanoseconds() * int64(rl.rate) / rl.period.Nanoseconds())
	if refill > 0 {
		rl.tokens += refill
		if rl.tokens > rl.rate {
			rl.tokens = rl.rate
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Remaining reports the tokens currently available.
func (rl *RateLimiter) Remaining() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return rl.tokens
}

// Reset refills the bucket to capacity.
func (rl *RateLimiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.tokens = rl.rate
	rl.lastRefill = time.Now()
}
