package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// StageMetrics records stage outcomes. Implemented by observability.Metrics.
type StageMetrics interface {
	RecordStage(ctx context.Context, stage string, outcome string, durationSeconds float64)
}

// Stage outcomes reported to StageMetrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// EventLogger emits stage events as structured logs and, when configured, metrics.
type EventLogger struct {
	logger  *slog.Logger
	metrics StageMetrics
}

// NewEventLogger creates an EventLogger. metrics may be nil.
func NewEventLogger(metrics StageMetrics) *EventLogger {
	return &EventLogger{
		logger:  slog.With("component", "pipeline"),
		metrics: metrics,
	}
}

func (l *EventLogger) StageStarted(ctx context.Context, stage StageName, pc *Context) {
	l.logger.DebugContext(ctx, "Stage started", "stage", stage, "workloadId", pc.Msg.WorkloadID)
}

func (l *EventLogger) StageSucceeded(ctx context.Context, stage StageName, pc *Context, skipped bool, elapsed time.Duration) {
	outcome := OutcomeSucceeded
	if skipped {
		outcome = OutcomeSkipped
	}
	l.logger.DebugContext(ctx, "Stage succeeded", "stage", stage, "workloadId", pc.Msg.WorkloadID, "skipped", skipped, "duration", elapsed)
	if l.metrics != nil {
		l.metrics.RecordStage(ctx, string(stage), outcome, elapsed.Seconds())
	}
}

func (l *EventLogger) StageFailed(ctx context.Context, stage StageName, pc *Context, err error, elapsed time.Duration) {
	l.logger.WarnContext(ctx, "Stage failed", "stage", stage, "workloadId", pc.Msg.WorkloadID, "error", err, "duration", elapsed)
	if l.metrics != nil {
		l.metrics.RecordStage(ctx, string(stage), OutcomeFailed, elapsed.Seconds())
	}
}

var _ EventRecorder = (*EventLogger)(nil)
