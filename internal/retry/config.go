package retry

import (
	"time"

	"launcher/internal/config"
)

// Compiled-in defaults, overridable by environment and then by flags.
const (
	defaultSuccessiveCompleteFailureLimit = 5
	defaultTotalCompleteFailureLimit      = 10
	defaultSuccessivePartialFailureLimit  = 1000
	defaultTotalPartialFailureLimit       = 20
	defaultMinInterval                    = 10 * time.Second
	defaultMaxInterval                    = 30 * time.Minute
	defaultBase                           = 3
)

// Defaults are the starting values for the seven retry tunables.
type Defaults struct {
	Limits Limits
	Policy BackoffPolicy
}

// DefaultDefaults returns the compiled-in tunables.
func DefaultDefaults() Defaults {
	return Defaults{
		Limits: Limits{
			SuccessiveCompleteFailures: defaultSuccessiveCompleteFailureLimit,
			TotalCompleteFailures:      defaultTotalCompleteFailureLimit,
			SuccessivePartialFailures:  defaultSuccessivePartialFailureLimit,
			TotalPartialFailures:       defaultTotalPartialFailureLimit,
		},
		Policy: BackoffPolicy{
			MinInterval: defaultMinInterval,
			MaxInterval: defaultMaxInterval,
			Base:        defaultBase,
		},
	}
}

// LoadDefaultsFromEnv loads retry tunables from environment variables.
func LoadDefaultsFromEnv() Defaults {
	d := DefaultDefaults()
	return Defaults{
		Limits: Limits{
			SuccessiveCompleteFailures: config.GetIntEnv("RETRY_SUCCESSIVE_COMPLETE_FAILURE_LIMIT", d.Limits.SuccessiveCompleteFailures),
			TotalCompleteFailures:      config.GetIntEnv("RETRY_TOTAL_COMPLETE_FAILURE_LIMIT", d.Limits.TotalCompleteFailures),
			SuccessivePartialFailures:  config.GetIntEnv("RETRY_SUCCESSIVE_PARTIAL_FAILURE_LIMIT", d.Limits.SuccessivePartialFailures),
			TotalPartialFailures:       config.GetIntEnv("RETRY_TOTAL_PARTIAL_FAILURE_LIMIT", d.Limits.TotalPartialFailures),
		},
		Policy: BackoffPolicy{
			MinInterval: config.GetDurationEnv("RETRY_BACKOFF_MIN_INTERVAL", d.Policy.MinInterval),
			MaxInterval: config.GetDurationEnv("RETRY_BACKOFF_MAX_INTERVAL", d.Policy.MaxInterval),
			Base:        config.GetIntEnv("RETRY_BACKOFF_BASE", d.Policy.Base),
		},
	}
}
