package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"launcher/internal/apperrors"
	"launcher/internal/consumer"
	"launcher/internal/health"
	"launcher/internal/retry"
	"launcher/internal/scheduling"
	"launcher/internal/workload"
)

// fakeQueue records enqueued launch messages.
type fakeQueue struct {
	mu   sync.Mutex
	msgs []*workload.LaunchMessage
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg *workload.LaunchMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

type fetcherFunc func(ctx context.Context, jobID int64) (retry.Counters, error)

func (f fetcherFunc) FetchState(ctx context.Context, jobID int64) (retry.Counters, error) {
	return f(ctx, jobID)
}

type staticStats consumer.Stats

func (s staticStats) Stats() consumer.Stats { return consumer.Stats(s) }

var fixedNow = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

// noJitter never adjusts a wait.
func noJitter() *scheduling.Jitterer {
	cfg := scheduling.DefaultJitterConfig()
	cfg.NoJitterCutoff = 1 << 62
	return scheduling.NewJitterer(cfg)
}

func ok() health.ReadinessChecker {
	return health.CheckerFunc(func(ctx context.Context) error { return nil })
}

func failing() health.ReadinessChecker {
	return health.CheckerFunc(func(ctx context.Context) error { return errors.New("down") })
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		deps       []health.Dependency
		wantCode   int
		wantStatus health.Status
	}{
		{
			name:       "no dependencies",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: health.StatusUnhealthy,
		},
		{
			name:       "all healthy",
			deps:       []health.Dependency{{Name: "cluster", Checker: ok()}, {Name: "queue", Checker: ok()}},
			wantCode:   http.StatusOK,
			wantStatus: health.StatusHealthy,
		},
		{
			name:       "optional down",
			deps:       []health.Dependency{{Name: "cluster", Checker: ok()}, {Name: "control-api", Checker: failing(), Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: health.StatusDegraded,
		},
		{
			name:       "required down",
			deps:       []health.Dependency{{Name: "cluster", Checker: failing()}, {Name: "queue", Checker: ok()}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: health.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := &Handler{health: health.NewChecker(tt.deps...)}

			w := httptest.NewRecorder()
			handler.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			var response health.Response
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, response.Status)
			}
		})
	}
}

func TestHandler_Launch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		body       string
		queueErr   error
		wantCode   int
		wantQueued int
	}{
		{
			name:       "accepted",
			body:       `{"workloadId": "w-1", "payload": {"image": "alpine"}}`,
			wantCode:   http.StatusAccepted,
			wantQueued: 1,
		},
		{
			name:     "empty body",
			body:     "",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed json",
			body:     `{"workloadId": w-1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing workload id",
			body:     `{"payload": {"image": "alpine"}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing payload",
			body:     `{"workloadId": "w-1"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "queue unavailable",
			body:     `{"workloadId": "w-1", "payloadRef": "payloads/w-1.json"}`,
			queueErr: apperrors.Unavailable("enqueue", errors.New("connection refused")),
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := &fakeQueue{err: tt.queueErr}
			handler := &Handler{queue: q}

			req := httptest.NewRequest(http.MethodPost, "/v1/launches", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.Launch(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := q.count(); got != tt.wantQueued {
				t.Errorf("Expected %d queued, got %d", tt.wantQueued, got)
			}
			if tt.wantCode != http.StatusAccepted {
				var resp map[string]string
				json.NewDecoder(w.Body).Decode(&resp)
				if resp["error"] == "" {
					t.Error("Expected error message in response")
				}
				return
			}
			var resp LaunchResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.WorkloadID != "w-1" || resp.Status != "queued" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestHandler_GetRetryState(t *testing.T) {
	t.Parallel()
	defaults := retry.Defaults{
		Limits: retry.Limits{SuccessiveCompleteFailures: 5, TotalCompleteFailures: 10, SuccessivePartialFailures: 20, TotalPartialFailures: 30},
		Policy: retry.BackoffPolicy{MinInterval: 10 * time.Second, MaxInterval: time.Hour, Base: 3},
	}
	states := map[int64]retry.Counters{
		42: {SuccessiveCompleteFailures: 2, TotalCompleteFailures: 2},
		43: {SuccessiveCompleteFailures: 5, TotalCompleteFailures: 5},
	}
	fetcher := fetcherFunc(func(ctx context.Context, jobID int64) (retry.Counters, error) {
		if jobID == 500 {
			return retry.Counters{}, apperrors.Unavailable("fetch", errors.New("timeout"))
		}
		c, ok := states[jobID]
		if !ok {
			return retry.Counters{}, apperrors.NotFound("retry state", "job")
		}
		return c, nil
	})
	handler := &Handler{retry: retry.NewStateClient(fetcher, nil, defaults)}

	tests := []struct {
		name        string
		jobID       string
		wantCode    int
		wantRetry   bool
		wantBackoff float64
		wantTotal   int
	}{
		{name: "in progress", jobID: "42", wantCode: http.StatusOK, wantRetry: true, wantBackoff: 30, wantTotal: 2},
		{name: "exhausted", jobID: "43", wantCode: http.StatusOK, wantRetry: false, wantBackoff: 810, wantTotal: 5},
		{name: "no state yet", jobID: "7", wantCode: http.StatusOK, wantRetry: true},
		{name: "bad id", jobID: "abc", wantCode: http.StatusBadRequest},
		{name: "store unavailable", jobID: "500", wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+tt.jobID+"/retry-state?workspaceId=ws-1", nil)
			req.SetPathValue("jobId", tt.jobID)
			w := httptest.NewRecorder()

			handler.GetRetryState(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp RetryStateResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ShouldRetry != tt.wantRetry {
				t.Errorf("ShouldRetry = %v, want %v", resp.ShouldRetry, tt.wantRetry)
			}
			if resp.BackoffSeconds != tt.wantBackoff {
				t.Errorf("BackoffSeconds = %v, want %v", resp.BackoffSeconds, tt.wantBackoff)
			}
			if resp.Counters.TotalCompleteFailures != tt.wantTotal {
				t.Errorf("TotalCompleteFailures = %d, want %d", resp.Counters.TotalCompleteFailures, tt.wantTotal)
			}
			if resp.Limits != defaults.Limits {
				t.Errorf("Limits = %+v, want %+v", resp.Limits, defaults.Limits)
			}
		})
	}
}

func TestHandler_NextRun(t *testing.T) {
	t.Parallel()
	handler := &Handler{jitter: noJitter(), now: func() time.Time { return fixedNow }}

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantWait float64
	}{
		{
			name:     "basic without prior job runs now",
			body:     `{"scheduleType": "BASIC", "units": 24, "timeUnit": "hours"}`,
			wantCode: http.StatusOK,
			wantWait: 0,
		},
		{
			name:     "basic waits out the interval",
			body:     `{"scheduleType": "basic", "units": 24, "timeUnit": "hours", "priorJobCreatedAt": "2026-01-01T09:00:00Z"}`,
			wantCode: http.StatusOK,
			wantWait: (23 * time.Hour).Seconds(),
		},
		{
			name:     "cron next boundary",
			body:     `{"scheduleType": "CRON", "cronExpression": "0 0 * * *"}`,
			wantCode: http.StatusOK,
			wantWait: (14 * time.Hour).Seconds(),
		},
		{
			name:     "cron missed boundary fires now",
			body:     `{"scheduleType": "CRON", "cronExpression": "0 * * * *", "priorJobStartedAt": "2026-01-01T08:30:00Z"}`,
			wantCode: http.StatusOK,
			wantWait: 0,
		},
		{
			name:     "cron in time zone",
			body:     `{"scheduleType": "CRON", "cronExpression": "0 0 12 * * ?", "timeZone": "Europe/Berlin"}`,
			wantCode: http.StatusOK,
			wantWait: time.Hour.Seconds(),
		},
		{
			name:     "invalid cron",
			body:     `{"scheduleType": "CRON", "cronExpression": "not a cron"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown time zone",
			body:     `{"scheduleType": "CRON", "cronExpression": "0 0 * * *", "timeZone": "Mars/Olympus"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid basic units",
			body:     `{"scheduleType": "BASIC", "units": 0, "timeUnit": "hours"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown schedule type",
			body:     `{"scheduleType": "MANUAL"}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/schedules/next", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.NextRun(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp ScheduleResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.WaitSeconds != tt.wantWait {
				t.Errorf("WaitSeconds = %v, want %v", resp.WaitSeconds, tt.wantWait)
			}
			if resp.JitteredWaitSeconds != tt.wantWait {
				t.Errorf("JitteredWaitSeconds = %v, want %v", resp.JitteredWaitSeconds, tt.wantWait)
			}
			want := fixedNow.Add(time.Duration(tt.wantWait * float64(time.Second)))
			if !resp.NextRunAt.Equal(want) {
				t.Errorf("NextRunAt = %v, want %v", resp.NextRunAt, want)
			}
		})
	}
}

func TestHandler_ConsumerStats(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	(&Handler{}).ConsumerStats(w, httptest.NewRequest(http.MethodGet, "/v1/consumer/stats", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d without consumer, got %d", http.StatusServiceUnavailable, w.Code)
	}

	handler := &Handler{stats: staticStats{InFlight: 2, Launched: 7, Requeued: 1}}
	w = httptest.NewRecorder()
	handler.ConsumerStats(w, httptest.NewRequest(http.MethodGet, "/v1/consumer/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var stats consumer.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.InFlight != 2 || stats.Launched != 7 || stats.Requeued != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	router := NewRouter(RouterConfig{
		Queue:         q,
		HealthChecker: health.NewChecker(health.Dependency{Name: "queue", Checker: ok()}),
		APIKey:        "secret",
	})

	tests := []struct {
		name     string
		method   string
		path     string
		auth     string
		wantCode int
	}{
		{name: "livez open", method: http.MethodGet, path: "/livez", wantCode: http.StatusOK},
		{name: "readyz open", method: http.MethodGet, path: "/readyz", wantCode: http.StatusOK},
		{name: "launch without token", method: http.MethodPost, path: "/v1/launches", wantCode: http.StatusUnauthorized},
		{name: "launch wrong token", method: http.MethodPost, path: "/v1/launches", auth: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "launch bad scheme", method: http.MethodPost, path: "/v1/launches", auth: "Basic secret", wantCode: http.StatusUnauthorized},
		{name: "launch with token", method: http.MethodPost, path: "/v1/launches", auth: "Bearer secret", wantCode: http.StatusAccepted},
		{name: "stats without token", method: http.MethodGet, path: "/v1/consumer/stats", wantCode: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/v1/jobs", auth: "Bearer secret", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var body *strings.Reader
			if tt.method == http.MethodPost {
				body = strings.NewReader(`{"workloadId": "w-1", "payload": {"image": "alpine"}}`)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := ContentTypeMiddleware()(inner)

	// Test with wrong content type
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
	}

	// Test with correct content type
	called = false
	req = httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestRouteOf(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{Queue: &fakeQueue{}, APIKey: "secret"})

	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{name: "templated path", method: http.MethodGet, path: "/v1/jobs/42/retry-state", want: "/v1/jobs/{jobId}/retry-state"},
		{name: "fixed path", method: http.MethodPost, path: "/v1/launches", want: "/v1/launches"},
		{name: "no route", method: http.MethodGet, path: "/v1/jobs/42", want: unmatchedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				router.ServeHTTP(w, r)
				got = routeOf(r)
			})
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			if got != tt.want {
				t.Errorf("routeOf(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestRouter_NoCORSHeaders(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{Queue: &fakeQueue{}})
	req := httptest.NewRequest(http.MethodOptions, "/v1/launches", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
	if w.Code == http.StatusOK {
		t.Errorf("OPTIONS status = %d, want a non-2xx from the mux", w.Code)
	}
}

func TestMiddleware_ContentType_EmptyBodyAllowed(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := ContentTypeMiddleware()(inner)

	// GET requests don't need content-type
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler should be called for GET requests")
	}
}
