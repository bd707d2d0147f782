package controlapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"launcher/internal/apperrors"
	"launcher/internal/retry"
)

const retryStatesPath = "/api/v1/retry_states/"

type retryStateBody struct {
	JobID        int64  `json:"jobId"`
	ConnectionID string `json:"connectionId,omitempty"`
	retry.Counters
}

// RetryStateClient reads and writes persisted retry counters over HTTP.
// It implements retry.StateFetcher and retry.StatePersister.
type RetryStateClient struct {
	t *Transport
}

// NewRetryStateClient creates a RetryStateClient.
func NewRetryStateClient(t *Transport) *RetryStateClient {
	return &RetryStateClient{t: t}
}

// FetchState returns the counters for jobID, or an apperrors.ErrNotFound
// error when the control plane has none.
func (c *RetryStateClient) FetchState(ctx context.Context, jobID int64) (retry.Counters, error) {
	var body retryStateBody
	id := strconv.FormatInt(jobID, 10)
	err := c.t.Do(ctx, "controlapi.fetchRetryState", http.MethodGet, retryStatesPath+id, nil, &body)
	if errors.Is(err, apperrors.ErrNotFound) {
		return retry.Counters{}, apperrors.NotFound("retry state", id)
	}
	if err != nil {
		return retry.Counters{}, err
	}
	return body.Counters, nil
}

// PersistState writes counters for jobID.
func (c *RetryStateClient) PersistState(ctx context.Context, jobID int64, connectionID string, counters retry.Counters) error {
	return c.t.Do(ctx, "controlapi.persistRetryState", http.MethodPut,
		retryStatesPath+strconv.FormatInt(jobID, 10),
		retryStateBody{JobID: jobID, ConnectionID: connectionID, Counters: counters}, nil)
}
