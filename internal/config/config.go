package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RoomCapacity is the hard cap on members per room.
const RoomCapacity = 10

// Config holds all configuration for the relay service.
type Config struct {
	Port     string
	Env      string
	RedisURL string

	// PingInterval is the liveness sweep period: every open connection is
	// pinged on this interval and terminated after one missed pong cycle.
	PingInterval time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on invalid values.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		RedisURL:     os.Getenv("REDIS_URL"),
		PingInterval: 30 * time.Second,
	}

	if v := os.Getenv("PING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			if cfg.Env == "production" {
				panic("PING_INTERVAL must be a positive duration")
			}
		} else {
			cfg.PingInterval = d
		}
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
