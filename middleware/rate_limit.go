package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"trailsafe/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Redis     *redis.Client // nil falls back to per-process buckets
	Requests  int
	Window    time.Duration
	KeyPrefix string
	SkipPaths []string
}

// DefaultRateLimitConfig bounds the ingest surface per client IP.
func DefaultRateLimitConfig(redisClient *redis.Client) RateLimitConfig {
	return RateLimitConfig{
		Redis:     redisClient,
		Requests:  120,
		Window:    time.Minute,
		KeyPrefix: "ratelimit",
		SkipPaths: []string{"/health"},
	}
}

// RateLimit returns middleware enforcing a fixed-window request budget per
// client IP. With Redis configured the window is shared across instances.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = true
	}

	var (
		localMu sync.Mutex
		local   = make(map[string]*utils.RateLimiter)
	)

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		clientIP := c.ClientIP()

		if config.Redis != nil {
			allowed, remaining, err := allowRedis(c, config, clientIP)
			if err != nil {
				// A limiter outage must not take the API down with it.
				logrus.Warnf("Rate limiter unavailable, allowing request: %v", err)
				c.Next()
				return
			}
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				utils.RateLimitResponse(c)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		localMu.Lock()
		limiter, ok := local[clientIP]
		if !ok {
			limiter = utils.NewRateLimiter(config.Requests, config.Window)
			local[clientIP] = limiter
		}
		localMu.Unlock()

		if !limiter.Allow() {
			utils.RateLimitResponse(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func allowRedis(c *gin.Context, config RateLimitConfig, clientIP string) (bool, int, error) {
	ctx := c.Request.Context()
	window := time.Now().Unix() / int64(config.Window.Seconds())
	key := fmt.Sprintf("%s:%s:%d", config.KeyPrefix, clientIP, window)

	count, err := config.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		config.Redis.Expire(ctx, key, config.Window)
	}

	remaining := config.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(config.Requests), remaining, nil
}
