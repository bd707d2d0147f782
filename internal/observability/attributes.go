// Package observability provides metrics for the launcher and its HTTP surface.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrStage   = "stage"
	attrOutcome = "outcome"
	attrClaimed = "claimed"
	attrType    = "type"
	attrForced  = "forced"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/jobs/42/retry-state -> /v1/jobs/{jobId}/retry-state
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func stageAttr(stage string) attribute.KeyValue {
	return attribute.String(attrStage, stage)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func claimedAttr(claimed bool) attribute.KeyValue {
	return attribute.Bool(attrClaimed, claimed)
}

func typeAttr(workloadType string) attribute.KeyValue {
	if workloadType == "" {
		workloadType = "unknown"
	}
	return attribute.String(attrType, workloadType)
}

func forcedAttr(forced bool) attribute.KeyValue {
	return attribute.Bool(attrForced, forced)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces the job ID segment of /v1/jobs/... paths with a placeholder.
func normalizePath(path string) string {
	const prefix = "/v1/jobs/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "" {
		return path
	}
	if _, tail, found := strings.Cut(rest, "/"); found {
		return prefix + "{jobId}/" + tail
	}
	return prefix + "{jobId}"
}
