package notify

import (
	"time"

	"batchctl/internal/config"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Config holds configuration for the webhook notifier.
type Config struct {
	URL         string        // webhook endpoint (required)
	SigningKey  string        // HMAC key, empty = unsigned
	BufferSize  int           // pending events buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 4)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
}

// LoadConfigFromEnv loads notifier configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		URL:         config.GetEnv("WEBHOOK_URL", ""),
		SigningKey:  config.GetSecretFile(config.GetEnv("WEBHOOK_KEY_FILE", "")),
		BufferSize:  config.GetIntEnv("WEBHOOK_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("WEBHOOK_WORKERS", 4),
		HTTPTimeout: config.GetDurationEnv("WEBHOOK_HTTP_TIMEOUT", 10*time.Second),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}
