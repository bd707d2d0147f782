// Package scheduling computes how long a recurring workload should wait before its next run.
package scheduling

import (
	"math/rand/v2"
	"slices"
	"time"
)

// ScheduleType distinguishes fixed-interval schedules from cron schedules.
type ScheduleType string

const (
	ScheduleBasic ScheduleType = "BASIC"
	ScheduleCron  ScheduleType = "CRON"
)

// Jitterer spreads scheduled runs so tenants on the same schedule do not fire together.
type Jitterer struct {
	cfg     JitterConfig
	buckets []Bucket
	// randN returns a uniform value in [0, n). Replaced in tests.
	randN func(n int64) int64
}

// NewJitterer creates a Jitterer using cfg.
func NewJitterer(cfg JitterConfig) *Jitterer {
	buckets := []Bucket{cfg.HighFrequency, cfg.MediumFrequency, cfg.LowFrequency}
	slices.SortFunc(buckets, func(a, b Bucket) int { return a.ThresholdMinutes - b.ThresholdMinutes })
	return &Jitterer{cfg: cfg, buckets: buckets, randN: rand.Int64N}
}

// jitterAmount returns the jitter window for an unjittered wait.
func (j *Jitterer) jitterAmount(wait time.Duration) time.Duration {
	minutes := wait.Minutes()
	for _, b := range j.buckets {
		if minutes <= float64(b.ThresholdMinutes) {
			return time.Duration(b.JitterAmountMinutes) * time.Minute
		}
	}
	return time.Duration(j.cfg.VeryLowFrequencyJitterMinutes) * time.Minute
}

// AddJitter returns wait adjusted by a random offset sized to the schedule's frequency.
// BASIC schedules move by up to half the window in either direction. CRON
// schedules only move later, so a run never fires before its cron boundary.
func (j *Jitterer) AddJitter(wait time.Duration, scheduleType ScheduleType) time.Duration {
	if wait < j.cfg.NoJitterCutoff {
		return wait
	}

	amount := j.jitterAmount(wait)
	if amount <= 0 {
		return wait
	}

	seconds := int64(amount / time.Second)
	offset := time.Duration(j.randN(seconds+1)) * time.Second // [0, amount]

	var jittered time.Duration
	switch scheduleType {
	case ScheduleCron:
		jittered = wait + offset
	default:
		jittered = wait + offset - amount/2
	}
	return max(jittered, 0)
}
