package scheduling

import (
	"time"

	"launcher/internal/config"
)

// Bucket classifies schedules by how often they fire.
type Bucket struct {
	ThresholdMinutes    int // waits up to this many minutes fall in the bucket
	JitterAmountMinutes int
}

// JitterConfig controls how much randomness is added to a computed wait.
type JitterConfig struct {
	NoJitterCutoff  time.Duration // waits shorter than this are returned unchanged
	HighFrequency   Bucket
	MediumFrequency Bucket
	LowFrequency    Bucket
	// VeryLowFrequencyJitterMinutes applies to waits above every bucket threshold.
	VeryLowFrequencyJitterMinutes int
}

// DefaultJitterConfig returns the stock bucket layout.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		NoJitterCutoff:                5 * time.Minute,
		HighFrequency:                 Bucket{ThresholdMinutes: 90, JitterAmountMinutes: 2},
		MediumFrequency:               Bucket{ThresholdMinutes: 150, JitterAmountMinutes: 5},
		LowFrequency:                  Bucket{ThresholdMinutes: 390, JitterAmountMinutes: 15},
		VeryLowFrequencyJitterMinutes: 25,
	}
}

// LoadJitterConfigFromEnv loads jitter configuration from environment variables.
func LoadJitterConfigFromEnv() JitterConfig {
	d := DefaultJitterConfig()
	return JitterConfig{
		NoJitterCutoff: time.Duration(config.GetIntEnv("SCHEDULE_JITTER_NO_JITTER_CUTOFF_MINUTES", int(d.NoJitterCutoff/time.Minute))) * time.Minute,
		HighFrequency: Bucket{
			ThresholdMinutes:    config.GetIntEnv("SCHEDULE_JITTER_HIGH_FREQUENCY_THRESHOLD_MINUTES", d.HighFrequency.ThresholdMinutes),
			JitterAmountMinutes: config.GetIntEnv("SCHEDULE_JITTER_HIGH_FREQUENCY_AMOUNT_MINUTES", d.HighFrequency.JitterAmountMinutes),
		},
		MediumFrequency: Bucket{
			ThresholdMinutes:    config.GetIntEnv("SCHEDULE_JITTER_MEDIUM_FREQUENCY_THRESHOLD_MINUTES", d.MediumFrequency.ThresholdMinutes),
			JitterAmountMinutes: config.GetIntEnv("SCHEDULE_JITTER_MEDIUM_FREQUENCY_AMOUNT_MINUTES", d.MediumFrequency.JitterAmountMinutes),
		},
		LowFrequency: Bucket{
			ThresholdMinutes:    config.GetIntEnv("SCHEDULE_JITTER_LOW_FREQUENCY_THRESHOLD_MINUTES", d.LowFrequency.ThresholdMinutes),
			JitterAmountMinutes: config.GetIntEnv("SCHEDULE_JITTER_LOW_FREQUENCY_AMOUNT_MINUTES", d.LowFrequency.JitterAmountMinutes),
		},
		VeryLowFrequencyJitterMinutes: config.GetIntEnv("SCHEDULE_JITTER_VERY_LOW_FREQUENCY_AMOUNT_MINUTES", d.VeryLowFrequencyJitterMinutes),
	}
}
