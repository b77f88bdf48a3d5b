// config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string
	BaseURL     string // public base for tracking links

	// Firebase Config
	FirebaseCredentials string

	// Twilio Config
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioPhoneNumber    string
	TwilioWhatsAppNumber string

	// Risk oracle
	OpenAIAPIKey string
	OpenAIModel  string

	// Monitor settings
	HistoryCapacity         int
	FullAnalysisInterval    time.Duration
	ConcernAnalysisInterval time.Duration
	AlertCooldown           time.Duration

	// Cascade settings
	TrackingLinkTTL time.Duration
	ChannelTimeout  time.Duration

	// Cache settings
	CacheCapacity int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/trailsafe"),
		RedisURL:    getEnv("REDIS_URL", ""),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),

		// Firebase
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		// Twilio
		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:    getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioWhatsAppNumber: getEnv("TWILIO_WHATSAPP_NUMBER", ""),

		// Risk oracle
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", ""),

		// Monitor
		HistoryCapacity:         getEnvAsInt("HISTORY_CAPACITY", 50),
		FullAnalysisInterval:    getEnvAsDuration("FULL_ANALYSIS_INTERVAL", 2*time.Minute),
		ConcernAnalysisInterval: getEnvAsDuration("CONCERN_ANALYSIS_INTERVAL", 30*time.Second),
		AlertCooldown:           getEnvAsDuration("ALERT_COOLDOWN", 5*time.Minute),

		// Cascade
		TrackingLinkTTL: getEnvAsDuration("TRACKING_LINK_TTL", 24*time.Hour),
		ChannelTimeout:  getEnvAsDuration("CHANNEL_TIMEOUT", 5*time.Second),

		// Cache
		CacheCapacity: getEnvAsInt("CACHE_CAPACITY", 10000),

		// Rate limiting
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// InitRedis connects the shared Redis client, or returns nil when no URL is
// configured. Tracking links and rate limits then stay process-local.
func InitRedis(cfg *Config) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		opt = &redis.Options{Addr: "localhost:6379"}
	}
	return redis.NewClient(opt)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
