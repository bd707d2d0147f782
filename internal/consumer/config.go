package consumer

import (
	"time"

	"launcher/internal/config"
)

// Config holds consumer settings.
type Config struct {
	Workers        int           // concurrent pipelines (default: 4)
	PollTimeout    time.Duration // how long Reserve blocks (default: 2s)
	MessageTimeout time.Duration // budget for one pipeline run (default: 5m)
	RequeueBackoff time.Duration // initial pause after a requeue (default: 1s)
	DepthInterval  time.Duration // queue depth metric period (default: 15s)
}

// LoadConfigFromEnv loads consumer configuration from environment variables.
func LoadConfigFromEnv(workers int) Config {
	cfg := Config{
		Workers:        workers,
		PollTimeout:    config.GetDurationEnv("CONSUMER_POLL_TIMEOUT", 2*time.Second),
		MessageTimeout: config.GetDurationEnv("CONSUMER_MESSAGE_TIMEOUT", 5*time.Minute),
		RequeueBackoff: config.GetDurationEnv("CONSUMER_REQUEUE_BACKOFF", time.Second),
		DepthInterval:  config.GetDurationEnv("CONSUMER_DEPTH_INTERVAL", 15*time.Second),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 5 * time.Minute
	}
	if c.RequeueBackoff <= 0 {
		c.RequeueBackoff = time.Second
	}
	if c.DepthInterval <= 0 {
		c.DepthInterval = 15 * time.Second
	}
	return c
}
