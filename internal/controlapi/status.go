package controlapi

import (
	"context"
	"log/slog"
	"net/http"

	"launcher/internal/pipeline"
	"launcher/internal/workload"
)

const statusPath = "/api/v1/workload/status"

type statusRequest struct {
	WorkloadID string `json:"workloadId"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// StatusClient updates workload status on the control plane.
type StatusClient struct {
	t      *Transport
	logger *slog.Logger
}

// NewStatusClient creates a StatusClient.
func NewStatusClient(t *Transport) *StatusClient {
	return &StatusClient{t: t, logger: slog.With("component", "status-client")}
}

// UpdateStatus sets the workload status. reason may be empty.
func (c *StatusClient) UpdateStatus(ctx context.Context, workloadID, status, reason string) error {
	return c.t.Do(ctx, "controlapi.updateStatus", http.MethodPut, statusPath,
		statusRequest{WorkloadID: workloadID, Status: status, Reason: reason}, nil)
}

// ReportRunning marks the workload running.
func (c *StatusClient) ReportRunning(ctx context.Context, workloadID string) error {
	return c.UpdateStatus(ctx, workloadID, workload.StatusRunning, "")
}

// ReportFailed marks the workload failed with reason.
func (c *StatusClient) ReportFailed(ctx context.Context, workloadID, reason string) error {
	return c.UpdateStatus(ctx, workloadID, workload.StatusFailure, reason)
}

// ReportFailure implements pipeline.FailureReporter. A failed claim means
// the workload may belong to another dataplane, so its status is left alone.
// Errors are logged, never returned.
func (c *StatusClient) ReportFailure(ctx context.Context, stageErr *pipeline.StageError) {
	if stageErr == nil || stageErr.Stage == pipeline.StageClaim {
		return
	}
	workloadID := stageErr.Ctx.Msg.WorkloadID
	if err := c.ReportFailed(ctx, workloadID, stageErr.Error()); err != nil {
		c.logger.Warn("Failed to report workload failure",
			"workload_id", workloadID,
			"stage", string(stageErr.Stage),
			"error", err,
		)
	}
}
