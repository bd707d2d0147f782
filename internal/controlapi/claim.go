package controlapi

import (
	"context"
	"net/http"
)

const claimPath = "/api/v1/workload/claim"

type claimRequest struct {
	WorkloadID  string `json:"workloadId"`
	DataplaneID string `json:"dataplaneId"`
}

type claimResponse struct {
	Claimed bool `json:"claimed"`
}

// ClaimRecorder records claim results. Implemented by observability.Metrics.
type ClaimRecorder interface {
	RecordClaim(ctx context.Context, claimed bool)
}

// ClaimClient asks the control plane for ownership of a workload.
type ClaimClient struct {
	t       *Transport
	metrics ClaimRecorder
}

// NewClaimClient creates a ClaimClient.
func NewClaimClient(t *Transport) *ClaimClient {
	return &ClaimClient{t: t}
}

// WithMetrics records every answered claim on m.
func (c *ClaimClient) WithMetrics(m ClaimRecorder) *ClaimClient {
	c.metrics = m
	return c
}

// Claim reports whether dataplaneID now owns workloadID. A false result
// means another dataplane holds it.
func (c *ClaimClient) Claim(ctx context.Context, workloadID, dataplaneID string) (bool, error) {
	var resp claimResponse
	err := c.t.Do(ctx, "controlapi.claim", http.MethodPost, claimPath,
		claimRequest{WorkloadID: workloadID, DataplaneID: dataplaneID}, &resp)
	if err != nil {
		return false, err
	}
	if c.metrics != nil {
		c.metrics.RecordClaim(ctx, resp.Claimed)
	}
	return resp.Claimed, nil
}
