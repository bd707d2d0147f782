// Package controlapi talks to the control plane: workload claims, status
// updates and persisted retry state.
package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"launcher/internal/apperrors"
	"launcher/pkg/backoff"
)

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 4 << 10

// Transport sends JSON requests to one control API host with retries and a
// circuit breaker. Only unavailable errors (network, 5xx) are retried and
// counted against the breaker.
type Transport struct {
	baseURL *url.URL
	client  *http.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewTransport creates a Transport for cfg.BaseURL.
func NewTransport(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid control API URL %q", cfg.BaseURL)
	}

	logger := slog.With("component", "controlapi", "host", base.Host)
	threshold := uint32(cfg.BreakerThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        base.Host,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Transport{
		baseURL: base,
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// BreakerState reports the breaker state, e.g. "closed" or "open".
func (t *Transport) BreakerState() string {
	return t.breaker.State().String()
}

// Do sends in as JSON and decodes a successful response into out.
// Either may be nil.
func (t *Transport) Do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return apperrors.Internal(op, err)
		}
	}

	var lastErr error
	for attempt := range t.cfg.MaxRetries + 1 {
		if attempt > 0 {
			wait := backoff.Exponential(attempt, &backoff.Config{Initial: t.cfg.InitialBackoff, Max: t.cfg.MaxBackoff})
			select {
			case <-ctx.Done():
				return apperrors.Unavailable(op, ctx.Err())
			case <-time.After(wait):
			}
		}

		_, lastErr = t.breaker.Execute(func() (interface{}, error) {
			return nil, t.send(ctx, op, method, path, body, out)
		})
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
			return apperrors.Unavailable(op, lastErr)
		}
		if !apperrors.IsRetryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		t.logger.Debug("Retrying control API call", "op", op, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (t *Transport) send(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL.String()+path, reader)
	if err != nil {
		return apperrors.Internal(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.FromHTTPStatus(op, resp.StatusCode, string(msg))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Ready implements health.ReadinessChecker. An open breaker means the
// control API has been failing.
func (t *Transport) Ready(ctx context.Context) error {
	if t.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("control API circuit breaker open for %s", t.baseURL.Host)
	}
	return nil
}
