package scheduling

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSchedule is a parsed cron expression bound to a time zone.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
	loc      *time.Location
}

// ParseCron parses a cron expression. Accepts 5 fields, 6 fields with leading
// seconds, or 7 fields where the trailing year is a wildcard. An empty
// timeZone means UTC.
func ParseCron(expr, timeZone string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) == 7 {
		if year := fields[6]; year != "*" && year != "?" {
			return nil, fmt.Errorf("cron %q: year field must be a wildcard", expr)
		}
		fields = fields[:6]
	}

	schedule, err := cronParser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", expr, err)
	}

	loc := time.UTC
	if timeZone != "" {
		if loc, err = time.LoadLocation(timeZone); err != nil {
			return nil, fmt.Errorf("cron time zone %q: %w", timeZone, err)
		}
	}
	return &CronSchedule{expr: expr, schedule: schedule, loc: loc}, nil
}

// Next returns the first fire time strictly after t.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.loc))
}

func (c *CronSchedule) String() string {
	return c.expr
}

// NextRuntimeWait returns how long to wait before the next cron run.
//
// Without a prior job the next boundary after now is used. With one, the wait
// targets the first boundary after the prior job started: a boundary the prior
// job already covered is skipped, and a boundary that has since passed fires
// immediately.
func NextRuntimeWait(now time.Time, priorJobStart *time.Time, schedule *CronSchedule) time.Duration {
	if priorJobStart == nil {
		return schedule.Next(now).Sub(now)
	}
	return max(schedule.Next(*priorJobStart).Sub(now), 0)
}
