package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// BasicInterval converts a fixed schedule such as (24, "hours") into a duration.
func BasicInterval(units int, timeUnit string) (time.Duration, error) {
	if units <= 0 {
		return 0, fmt.Errorf("schedule units must be positive, got %d", units)
	}
	var unit time.Duration
	switch strings.ToLower(timeUnit) {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	case "weeks":
		unit = 7 * 24 * time.Hour
	case "months":
		unit = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown schedule time unit %q", timeUnit)
	}
	return time.Duration(units) * unit, nil
}

// BasicScheduleWait returns the time until one interval after the prior job was
// created. Without a prior job the workload runs immediately.
func BasicScheduleWait(now time.Time, priorJobCreated *time.Time, interval time.Duration) time.Duration {
	if priorJobCreated == nil {
		return 0
	}
	return max(priorJobCreated.Add(interval).Sub(now), 0)
}
