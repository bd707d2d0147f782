package controlapi

import (
	"time"

	"launcher/internal/config"
)

// Config holds control API client settings.
type Config struct {
	BaseURL          string
	Token            string        // bearer token, empty disables auth
	Timeout          time.Duration // per-request timeout (default: 10s)
	MaxRetries       int           // retries after the first attempt (default: 3)
	InitialBackoff   time.Duration // default: 200ms
	MaxBackoff       time.Duration // default: 5s
	BreakerThreshold int           // consecutive failures that open the breaker (default: 5)
	BreakerCooldown  time.Duration // default: 30s
}

// LoadConfigFromEnv loads control API settings from environment variables.
func LoadConfigFromEnv(baseURL, token string) Config {
	cfg := Config{
		BaseURL:          baseURL,
		Token:            token,
		Timeout:          config.GetDurationEnv("CONTROL_API_TIMEOUT", 10*time.Second),
		MaxRetries:       config.GetIntEnv("CONTROL_API_MAX_RETRIES", 3),
		InitialBackoff:   config.GetDurationEnv("CONTROL_API_INITIAL_BACKOFF", 200*time.Millisecond),
		MaxBackoff:       config.GetDurationEnv("CONTROL_API_MAX_BACKOFF", 5*time.Second),
		BreakerThreshold: config.GetIntEnv("CONTROL_API_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  config.GetDurationEnv("CONTROL_API_BREAKER_COOLDOWN", 30*time.Second),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}
