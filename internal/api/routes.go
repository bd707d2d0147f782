package api

import (
	"net/http"
	"time"

	"launcher/internal/health"
	"launcher/internal/observability"
	"launcher/internal/scheduling"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Queue         Enqueuer
	RetryStates   RetryStates
	Jitterer      *scheduling.Jitterer // default jitter config when nil
	Consumer      StatsSource          // optional
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	Now           func() time.Time // defaults to time.Now
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := &Handler{
		queue:  cfg.Queue,
		retry:  cfg.RetryStates,
		jitter: cfg.Jitterer,
		stats:  cfg.Consumer,
		health: cfg.HealthChecker,
		now:    cfg.Now,
	}
	if handler.jitter == nil {
		handler.jitter = scheduling.NewJitterer(scheduling.DefaultJitterConfig())
	}
	if handler.now == nil {
		handler.now = time.Now
	}

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Launcher endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/launches", authMiddleware(http.HandlerFunc(handler.Launch)))
	mux.Handle("GET /v1/jobs/{jobId}/retry-state", authMiddleware(http.HandlerFunc(handler.GetRetryState)))
	mux.Handle("POST /v1/schedules/next", authMiddleware(http.HandlerFunc(handler.NextRun)))
	mux.Handle("GET /v1/consumer/stats", authMiddleware(http.HandlerFunc(handler.ConsumerStats)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
