package scheduling

import (
	"testing"
	"time"
)

func mustParseCron(t *testing.T, expr, tz string) *CronSchedule {
	t.Helper()
	s, err := ParseCron(expr, tz)
	if err != nil {
		t.Fatalf("ParseCron(%q) error = %v", expr, err)
	}
	return s
}

func TestNextRuntimeWait_Scenarios(t *testing.T) {
	t.Parallel()

	daily := mustParseCron(t, "0 0 0 * * ?", "UTC")
	nextMidnight := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	prevMidnight := nextMidnight.Add(-24 * time.Hour)

	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name  string
		now   time.Time
		prior *time.Time
		want  time.Duration
	}{
		{
			name: "no prior job waits for the next boundary",
			now:  nextMidnight.Add(-3 * time.Hour),
			want: 3 * time.Hour,
		},
		{
			name:  "prior job before a missed boundary runs now",
			now:   nextMidnight.Add(5 * time.Minute),
			prior: ptr(prevMidnight.Add(10 * time.Minute)),
			want:  0,
		},
		{
			name:  "prior job already covered the boundary",
			now:   nextMidnight.Add(20 * time.Minute),
			prior: ptr(nextMidnight.Add(15 * time.Minute)),
			want:  23*time.Hour + 40*time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NextRuntimeWait(tt.now, tt.prior, daily); got != tt.want {
				t.Errorf("NextRuntimeWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCron_Formats(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 3, 15, 10, 7, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/15 * * * *", time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC)},
		{"0 0 12 * * ?", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"0 30 * * * ? *", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"@daily", time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			s := mustParseCron(t, tt.expr, "")
			if got := s.Next(from); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", from, got, tt.want)
			}
		})
	}
}

func TestParseCron_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
		tz   string
	}{
		{"garbage", "not a cron", ""},
		{"explicit year", "0 0 0 * * ? 2030", ""},
		{"bad zone", "0 0 * * *", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseCron(tt.expr, tt.tz); err == nil {
				t.Errorf("ParseCron(%q, %q) error = nil, want error", tt.expr, tt.tz)
			}
		})
	}
}

func TestCronSchedule_TimeZone(t *testing.T) {
	t.Parallel()

	s := mustParseCron(t, "0 0 9 * * ?", "America/New_York")
	from := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) // 08:00 EDT
	want := time.Date(2024, 7, 1, 13, 0, 0, 0, time.UTC) // 09:00 EDT

	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}
