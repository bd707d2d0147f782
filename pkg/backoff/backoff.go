// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 100ms
	Max        time.Duration // default: 5s
	Multiplier float64       // default: 2
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*multiplier, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	multiplier := 2.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
		if cfg.Multiplier >= 1 {
			multiplier = cfg.Multiplier
		}
	}

	if attempt < 1 {
		return initial
	}
	return clamp(float64(initial)*math.Pow(multiplier, float64(attempt-1)), initial, maxBackoff)
}

// Policy is a bounded exponential backoff where attempt 0 maps to Min.
//
// Duration(n) = clamp(Min * Base^n, Min, Max). A zero Min disables backoff
// entirely and every attempt returns zero.
type Policy struct {
	Min  time.Duration
	Max  time.Duration
	Base float64
}

// Duration returns the wait for the given attempt count.
// The result is non-decreasing in attempt.
func (p Policy) Duration(attempt int) time.Duration {
	if p.Min <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base < 1 {
		base = 1
	}
	maxBackoff := p.Max
	if maxBackoff < p.Min {
		maxBackoff = p.Min
	}
	return clamp(float64(p.Min)*math.Pow(base, float64(attempt)), p.Min, maxBackoff)
}

func clamp(v float64, lo, hi time.Duration) time.Duration {
	switch {
	case math.IsNaN(v) || v > float64(hi):
		return hi
	case v < float64(lo):
		return lo
	default:
		return time.Duration(v)
	}
}
