// Package retry models per-job retry state: failure counters, limits and backoff.
package retry

import (
	"fmt"
	"time"

	"launcher/pkg/backoff"
)

// Counters are the persisted failure counts for one job.
type Counters struct {
	SuccessiveCompleteFailures int `json:"successiveCompleteFailures"`
	TotalCompleteFailures      int `json:"totalCompleteFailures"`
	SuccessivePartialFailures  int `json:"successivePartialFailures"`
	TotalPartialFailures       int `json:"totalPartialFailures"`
}

// Limits cap each counter. A job stops retrying once any counter reaches its limit.
type Limits struct {
	SuccessiveCompleteFailures int `json:"successiveCompleteFailures"`
	TotalCompleteFailures      int `json:"totalCompleteFailures"`
	SuccessivePartialFailures  int `json:"successivePartialFailures"`
	TotalPartialFailures       int `json:"totalPartialFailures"`
}

// BackoffPolicy maps successive complete failures to a wait.
type BackoffPolicy struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Base        int
}

// Backoff returns clamp(MinInterval * Base^attempt, MinInterval, MaxInterval).
// A zero MinInterval yields zero for every attempt.
func (p BackoffPolicy) Backoff(attempt int) time.Duration {
	return backoff.Policy{Min: p.MinInterval, Max: p.MaxInterval, Base: float64(p.Base)}.Duration(attempt)
}

// Manager combines a job's counters with its limits and backoff policy.
// It is rebuilt on every hydration and is never the system of record.
type Manager struct {
	Counters
	Limits Limits
	Policy BackoffPolicy
}

// IncrementFailure records a failed attempt. A partial failure (the attempt
// made progress) resets the successive complete count and vice versa.
func (m *Manager) IncrementFailure(partial bool) {
	if partial {
		m.SuccessivePartialFailures++
		m.TotalPartialFailures++
		m.SuccessiveCompleteFailures = 0
		return
	}
	m.SuccessiveCompleteFailures++
	m.TotalCompleteFailures++
	m.SuccessivePartialFailures = 0
}

// ShouldRetry reports whether every counter is still below its limit.
func (m *Manager) ShouldRetry() bool {
	return m.SuccessiveCompleteFailures < m.Limits.SuccessiveCompleteFailures &&
		m.TotalCompleteFailures < m.Limits.TotalCompleteFailures &&
		m.SuccessivePartialFailures < m.Limits.SuccessivePartialFailures &&
		m.TotalPartialFailures < m.Limits.TotalPartialFailures
}

// Backoff is the wait before the next attempt. Only successive complete
// failures back off; the first one waits MinInterval.
func (m *Manager) Backoff() time.Duration {
	if m.SuccessiveCompleteFailures <= 0 {
		return 0
	}
	return m.Policy.Backoff(m.SuccessiveCompleteFailures - 1)
}

func (m *Manager) String() string {
	return fmt.Sprintf(
		"successiveCompleteFailures=%d/%d totalCompleteFailures=%d/%d successivePartialFailures=%d/%d totalPartialFailures=%d/%d backoff=%s",
		m.SuccessiveCompleteFailures, m.Limits.SuccessiveCompleteFailures,
		m.TotalCompleteFailures, m.Limits.TotalCompleteFailures,
		m.SuccessivePartialFailures, m.Limits.SuccessivePartialFailures,
		m.TotalPartialFailures, m.Limits.TotalPartialFailures,
		m.Backoff(),
	)
}
