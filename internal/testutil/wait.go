// Package testutil holds polling helpers for tests that wait on the
// consumer and pipeline to settle deliveries asynchronously.
package testutil

import (
	"testing"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	pollInterval   = 25 * time.Millisecond
)

type waitConfig struct {
	timeout time.Duration
}

// WaitOption adjusts a wait.
type WaitOption func(*waitConfig)

// WithTimeout bounds the wait (default 10s).
func WithTimeout(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = d
	}
}

// WaitFor polls cond until it holds or the timeout passes, reporting
// whether it held. cond is checked once more at the deadline.
func WaitFor(tb testing.TB, cond func() bool, opts ...WaitOption) bool {
	tb.Helper()

	c := waitConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&c)
	}

	deadline := time.Now().Add(c.timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(pollInterval)
	}
	return cond()
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, cond func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, cond, opts...) {
		tb.Fatal("condition not met before timeout")
	}
}
