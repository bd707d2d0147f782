package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests and stages take
// - Traffic: Request and launch throughput
// - Errors: Rate of failed stages, deletes and messages
// - Saturation: Queue depth and in-flight launches
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Pipeline metrics (Latency, Traffic, Errors)
	StageDuration    metric.Float64Histogram
	StagesTotal      metric.Int64Counter
	StagesSkipped    metric.Int64Counter
	ClaimsTotal      metric.Int64Counter
	PodsLaunched     metric.Int64Counter
	PodDeletesTotal  metric.Int64Counter
	LaunchesInFlight metric.Int64UpDownCounter
	QueueMessages    metric.Int64Counter
	QueueDepth       metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("workload-launcher")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Pipeline metrics
	m.StageDuration, err = meter.Float64Histogram(
		"launcher_stage_duration_seconds",
		metric.WithDescription("Launch pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StagesTotal, err = meter.Int64Counter(
		"launcher_stage_total",
		metric.WithDescription("Total stage executions by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StagesSkipped, err = meter.Int64Counter(
		"launcher_stage_skipped_total",
		metric.WithDescription("Total stages skipped because an earlier stage ended the launch"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ClaimsTotal, err = meter.Int64Counter(
		"launcher_claims_total",
		metric.WithDescription("Total workload claim attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PodsLaunched, err = meter.Int64Counter(
		"launcher_pods_launched_total",
		metric.WithDescription("Total workload pods created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PodDeletesTotal, err = meter.Int64Counter(
		"launcher_pod_deletes_total",
		metric.WithDescription("Total pod delete attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.LaunchesInFlight, err = meter.Int64UpDownCounter(
		"launcher_launches_in_flight",
		metric.WithDescription("Number of launch pipelines currently running (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Queue metrics
	m.QueueMessages, err = meter.Int64Counter(
		"launcher_queue_messages_total",
		metric.WithDescription("Total launch messages processed by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge(
		"launcher_queue_depth",
		metric.WithDescription("Launch messages waiting in the queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStage records one stage execution. outcome is succeeded, skipped or failed.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, durationSeconds float64) {
	m.StageDuration.Record(ctx, durationSeconds, metric.WithAttributes(stageAttr(stage)))
	m.StagesTotal.Add(ctx, 1, metric.WithAttributes(stageAttr(stage), outcomeAttr(outcome)))
	if outcome == "skipped" {
		m.StagesSkipped.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
	}
}

// RecordClaim records a claim attempt and whether it was granted.
func (m *Metrics) RecordClaim(ctx context.Context, claimed bool) {
	m.ClaimsTotal.Add(ctx, 1, metric.WithAttributes(claimedAttr(claimed)))
}

// RecordPodLaunched records a pod created for a workload type.
func (m *Metrics) RecordPodLaunched(ctx context.Context, workloadType string) {
	m.PodsLaunched.Add(ctx, 1, metric.WithAttributes(typeAttr(workloadType)))
}

// RecordPodDelete records the final result of a pod delete.
func (m *Metrics) RecordPodDelete(ctx context.Context, forced, success bool) {
	m.PodDeletesTotal.Add(ctx, 1, metric.WithAttributes(forcedAttr(forced), successAttr(success)))
}

// RecordLaunchStarted marks a pipeline run as in flight.
func (m *Metrics) RecordLaunchStarted(ctx context.Context) {
	m.LaunchesInFlight.Add(ctx, 1)
}

// RecordLaunchFinished records the end of a pipeline run.
func (m *Metrics) RecordLaunchFinished(ctx context.Context) {
	m.LaunchesInFlight.Add(ctx, -1)
}

// RecordQueueMessage records how a consumed message was settled (acked, nacked, dropped).
func (m *Metrics) RecordQueueMessage(ctx context.Context, outcome string) {
	m.QueueMessages.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordQueueDepth records the number of pending messages.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int64) {
	m.QueueDepth.Record(ctx, depth)
}
