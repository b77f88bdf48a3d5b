package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig tunes RetryWithBackoff.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig is tuned for notification sends: short total latency.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// RetryWithBackoff runs fn until it succeeds or MaxRetries retries are spent,
// sleeping min(MaxDelay, BaseDelay * ExponentialBase^attempt) between
// attempts, jittered by a uniform factor in [0.5, 1.5] when enabled. The last
// error is returned after the final attempt.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func(context.Context) error) error {
	base := config.ExponentialBase
	if base <= 1 {
		base = 2.0
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(config.BaseDelay) * math.Pow(base, float64(attempt-1)))
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
			if config.Jitter {
				delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < config.MaxRetries {
			logrus.Debugf("Retry attempt %d/%d failed: %v", attempt+1, config.MaxRetries, lastErr)
		}
	}

	return lastErr
}
