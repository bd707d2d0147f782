package pods

import (
	"time"

	"launcher/internal/config"
)

// Config holds cluster pod client settings.
type Config struct {
	Namespace        string
	DeleteTimeout    time.Duration // graceful delete budget before forcing (default 10s)
	DeleteRetryDelay time.Duration // fixed delay between delete attempts (default 2s)
	DeleteRetryMax   int           // delete attempts including the first (default 5)
	ServiceAccount   string        // optional service account for workload pods
}

// LoadConfigFromEnv loads pod client settings from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Namespace:        config.GetEnv("POD_NAMESPACE", "jobs"),
		DeleteTimeout:    config.GetDurationEnv("POD_DELETE_TIMEOUT", 10*time.Second),
		DeleteRetryDelay: config.GetDurationEnv("POD_DELETE_RETRY_DELAY", 2*time.Second),
		DeleteRetryMax:   config.GetIntEnv("POD_DELETE_RETRY_MAX", 5),
		ServiceAccount:   config.GetEnv("POD_SERVICE_ACCOUNT", ""),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "jobs"
	}
	if c.DeleteTimeout <= 0 {
		c.DeleteTimeout = 10 * time.Second
	}
	if c.DeleteRetryDelay < 0 {
		c.DeleteRetryDelay = 2 * time.Second
	}
	if c.DeleteRetryMax <= 0 {
		c.DeleteRetryMax = 5
	}
	return c
}
