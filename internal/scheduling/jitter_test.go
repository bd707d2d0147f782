package scheduling

import (
	"testing"
	"time"
)

func TestAddJitter_BelowCutoffUnchanged(t *testing.T) {
	t.Parallel()

	j := NewJitterer(DefaultJitterConfig())
	for _, wait := range []time.Duration{0, time.Second, 4*time.Minute + 59*time.Second} {
		for _, st := range []ScheduleType{ScheduleBasic, ScheduleCron} {
			if got := j.AddJitter(wait, st); got != wait {
				t.Errorf("AddJitter(%v, %s) = %v, want unchanged", wait, st, got)
			}
		}
	}
}

func TestAddJitter_BasicBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultJitterConfig()
	j := NewJitterer(cfg)
	wait := 60 * time.Minute
	amount := time.Duration(cfg.HighFrequency.JitterAmountMinutes) * time.Minute

	sawEarly, sawLate := false, false
	for range 2000 {
		got := j.AddJitter(wait, ScheduleBasic)
		if got < wait-amount/2 || got > wait+amount/2 {
			t.Fatalf("AddJitter(%v, BASIC) = %v, want within [%v, %v]", wait, got, wait-amount/2, wait+amount/2)
		}
		sawEarly = sawEarly || got < wait
		sawLate = sawLate || got > wait
	}
	if !sawEarly || !sawLate {
		t.Errorf("BASIC jitter should move both directions (early=%v late=%v)", sawEarly, sawLate)
	}
}

func TestAddJitter_CronNeverEarly(t *testing.T) {
	t.Parallel()

	cfg := DefaultJitterConfig()
	j := NewJitterer(cfg)
	wait := 60 * time.Minute
	amount := time.Duration(cfg.HighFrequency.JitterAmountMinutes) * time.Minute

	for range 2000 {
		got := j.AddJitter(wait, ScheduleCron)
		if got < wait || got > wait+amount {
			t.Fatalf("AddJitter(%v, CRON) = %v, want within [%v, %v]", wait, got, wait, wait+amount)
		}
	}
}

func TestAddJitter_BucketSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wait time.Duration
		want time.Duration // full jitter window
	}{
		{"at cutoff", 5 * time.Minute, 2 * time.Minute},
		{"high threshold inclusive", 90 * time.Minute, 2 * time.Minute},
		{"medium", 91 * time.Minute, 5 * time.Minute},
		{"medium threshold inclusive", 150 * time.Minute, 5 * time.Minute},
		{"low", 6 * time.Hour, 15 * time.Minute},
		{"very low", 24 * time.Hour, 25 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := NewJitterer(DefaultJitterConfig())
			// Always draw the maximum so the result reveals the window.
			j.randN = func(n int64) int64 { return n - 1 }

			if got := j.AddJitter(tt.wait, ScheduleCron); got != tt.wait+tt.want {
				t.Errorf("CRON max jitter = %v, want %v", got-tt.wait, tt.want)
			}
			if got := j.AddJitter(tt.wait, ScheduleBasic); got != tt.wait+tt.want/2 {
				t.Errorf("BASIC max jitter = %v, want %v", got-tt.wait, tt.want/2)
			}
		})
	}
}

func TestAddJitter_BucketsSortedByThreshold(t *testing.T) {
	t.Parallel()

	cfg := DefaultJitterConfig()
	// Out of order on purpose: the smallest threshold must still be checked first.
	cfg.HighFrequency, cfg.LowFrequency = cfg.LowFrequency, cfg.HighFrequency
	j := NewJitterer(cfg)
	j.randN = func(n int64) int64 { return n - 1 }

	wait := 60 * time.Minute
	if got := j.AddJitter(wait, ScheduleCron); got != wait+2*time.Minute {
		t.Errorf("AddJitter() = %v, want %v", got, wait+2*time.Minute)
	}
}

func TestAddJitter_NeverNegative(t *testing.T) {
	t.Parallel()

	cfg := JitterConfig{
		NoJitterCutoff: 0,
		HighFrequency:  Bucket{ThresholdMinutes: 10, JitterAmountMinutes: 20},
	}
	j := NewJitterer(cfg)
	j.randN = func(int64) int64 { return 0 }

	if got := j.AddJitter(time.Minute, ScheduleBasic); got != 0 {
		t.Errorf("AddJitter() = %v, want 0", got)
	}
}

func TestLoadJitterConfigFromEnv(t *testing.T) {
	t.Setenv("SCHEDULE_JITTER_NO_JITTER_CUTOFF_MINUTES", "10")
	t.Setenv("SCHEDULE_JITTER_HIGH_FREQUENCY_AMOUNT_MINUTES", "3")

	cfg := LoadJitterConfigFromEnv()
	if cfg.NoJitterCutoff != 10*time.Minute {
		t.Errorf("NoJitterCutoff = %v, want 10m", cfg.NoJitterCutoff)
	}
	if cfg.HighFrequency.JitterAmountMinutes != 3 {
		t.Errorf("HighFrequency.JitterAmountMinutes = %d, want 3", cfg.HighFrequency.JitterAmountMinutes)
	}
	if cfg.HighFrequency.ThresholdMinutes != 90 {
		t.Errorf("HighFrequency.ThresholdMinutes = %d, want 90", cfg.HighFrequency.ThresholdMinutes)
	}
	if cfg.VeryLowFrequencyJitterMinutes != 25 {
		t.Errorf("VeryLowFrequencyJitterMinutes = %d, want 25", cfg.VeryLowFrequencyJitterMinutes)
	}
}
