package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/launches", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/jobs/42/retry-state", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/launches", 500, 0.001)
}

func TestRecordLauncherMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordStage(ctx, "CLAIM", "succeeded", 0.02)
	metrics.RecordStage(ctx, "BUILD", "skipped", 0)
	metrics.RecordStage(ctx, "LAUNCH", "failed", 1.5)
	metrics.RecordClaim(ctx, true)
	metrics.RecordClaim(ctx, false)
	metrics.RecordPodLaunched(ctx, "sync")
	metrics.RecordPodLaunched(ctx, "")
	metrics.RecordPodDelete(ctx, true, true)
	metrics.RecordLaunchStarted(ctx)
	metrics.RecordLaunchFinished(ctx)
	metrics.RecordQueueMessage(ctx, "acked")
	metrics.RecordQueueDepth(ctx, 12)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/launches", "/v1/launches"},
		{"/v1/jobs/", "/v1/jobs/"},
		{"/v1/jobs/42", "/v1/jobs/{jobId}"},
		{"/v1/jobs/42/retry-state", "/v1/jobs/{jobId}/retry-state"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
