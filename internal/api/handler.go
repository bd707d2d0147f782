// Package api provides the HTTP API handlers and routing for the workload launcher.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"launcher/internal/apperrors"
	"launcher/internal/consumer"
	"launcher/internal/health"
	"launcher/internal/retry"
	"launcher/internal/scheduling"
	"launcher/internal/workload"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Enqueuer accepts launch messages for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *workload.LaunchMessage) error
}

// RetryStates hydrates retry managers.
type RetryStates interface {
	Hydrate(ctx context.Context, jobID *int64, workspaceID string) (*retry.Manager, error)
}

// StatsSource exposes consumer statistics.
type StatsSource interface {
	Stats() consumer.Stats
}

// Handler contains HTTP handlers for the launcher API
type Handler struct {
	queue  Enqueuer
	retry  RetryStates
	jitter *scheduling.Jitterer
	stats  StatsSource
	health *health.Checker
	now    func() time.Time
}

// LaunchResponse acknowledges an accepted launch.
type LaunchResponse struct {
	WorkloadID string `json:"workloadId"`
	Status     string `json:"status"`
}

// RetryStateResponse describes a job's retry position.
type RetryStateResponse struct {
	JobID          int64          `json:"jobId"`
	Counters       retry.Counters `json:"counters"`
	Limits         retry.Limits   `json:"limits"`
	ShouldRetry    bool           `json:"shouldRetry"`
	BackoffSeconds float64        `json:"backoffSeconds"`
}

// ScheduleRequest asks when a scheduled connection should next run.
type ScheduleRequest struct {
	ScheduleType      scheduling.ScheduleType `json:"scheduleType"`
	CronExpression    string                  `json:"cronExpression,omitempty"`
	TimeZone          string                  `json:"timeZone,omitempty"`
	Units             int                     `json:"units,omitempty"`
	TimeUnit          string                  `json:"timeUnit,omitempty"`
	PriorJobStartedAt *time.Time              `json:"priorJobStartedAt,omitempty"`
	PriorJobCreatedAt *time.Time              `json:"priorJobCreatedAt,omitempty"`
}

// ScheduleResponse is the computed wait, before and after jitter.
type ScheduleResponse struct {
	WaitSeconds         float64   `json:"waitSeconds"`
	JitteredWaitSeconds float64   `json:"jitteredWaitSeconds"`
	NextRunAt           time.Time `json:"nextRunAt"`
}

// Launch handles POST /v1/launches
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var msg workload.LaunchMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := msg.Validate(); err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.queue.Enqueue(r.Context(), &msg); err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, LaunchResponse{WorkloadID: msg.WorkloadID, Status: "queued"})
}

// GetRetryState handles GET /v1/jobs/{jobId}/retry-state?workspaceId=
func (h *Handler) GetRetryState(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(r.PathValue("jobId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Job ID must be an integer")
		return
	}

	m, err := h.retry.Hydrate(r.Context(), &jobID, r.URL.Query().Get("workspaceId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RetryStateResponse{
		JobID:          jobID,
		Counters:       m.Counters,
		Limits:         m.Limits,
		ShouldRetry:    m.ShouldRetry(),
		BackoffSeconds: m.Backoff().Seconds(),
	})
}

// NextRun handles POST /v1/schedules/next
func (h *Handler) NextRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	now := h.now()
	var wait time.Duration
	switch scheduling.ScheduleType(strings.ToUpper(string(req.ScheduleType))) {
	case scheduling.ScheduleCron:
		schedule, err := scheduling.ParseCron(req.CronExpression, req.TimeZone)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("cronExpression", err.Error()))
			return
		}
		wait = scheduling.NextRuntimeWait(now, req.PriorJobStartedAt, schedule)
		req.ScheduleType = scheduling.ScheduleCron
	case scheduling.ScheduleBasic:
		interval, err := scheduling.BasicInterval(req.Units, req.TimeUnit)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("units", err.Error()))
			return
		}
		wait = scheduling.BasicScheduleWait(now, req.PriorJobCreatedAt, interval)
		req.ScheduleType = scheduling.ScheduleBasic
	default:
		writeError(w, http.StatusBadRequest, "scheduleType must be CRON or BASIC")
		return
	}

	jittered := h.jitter.AddJitter(wait, req.ScheduleType)
	writeJSON(w, http.StatusOK, ScheduleResponse{
		WaitSeconds:         wait.Seconds(),
		JitteredWaitSeconds: jittered.Seconds(),
		NextRunAt:           now.Add(jittered).UTC(),
	})
}

// ConsumerStats handles GET /v1/consumer/stats
func (h *Handler) ConsumerStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "consumer not running")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if a required dependency (cluster, queue) is unavailable.
// A degraded optional dependency still reports 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	writeError(w, status, err.Error())
}
