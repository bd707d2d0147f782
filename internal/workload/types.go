// Package workload defines the launch message and typed job input handled by the launcher.
package workload

import (
	"encoding/json"
)

// Label keys attached to every pod the launcher creates.
const (
	LabelManagedBy  = "managed-by"
	LabelWorkloadID = "workload-id"
	LabelMutexKey   = "mutex-key"
	LabelType       = "type"

	ManagedByValue = "workload-launcher"
)

// Status values understood by the control API.
const (
	StatusRunning = "RUNNING"
	StatusFailure = "FAILURE"
)

// LaunchMessage is a durable "run this workload" request.
// It is produced upstream and treated as read-only by the launcher.
type LaunchMessage struct {
	WorkloadID string            `json:"workloadId"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	PayloadRef string            `json:"payloadRef,omitempty"` // "bucket/key" in object storage
	Labels     map[string]string `json:"labels,omitempty"`
	LogPath    string            `json:"logPath,omitempty"`
	Type       string            `json:"type,omitempty"` // e.g. "sync", "check", "discover"

	MutexKey       string `json:"mutexKey,omitempty"`
	WorkspaceID    string `json:"workspaceId,omitempty"`
	ConnectionID   string `json:"connectionId,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Mutex returns the key identifying the logical resource this workload occupies.
// Falls back to the mutex-key label, then the connection. Empty means unconstrained.
func (m *LaunchMessage) Mutex() string {
	if m.MutexKey != "" {
		return m.MutexKey
	}
	if k := m.Labels[LabelMutexKey]; k != "" {
		return k
	}
	return m.ConnectionID
}

// JobInput is the typed form of a launch payload.
type JobInput struct {
	JobID          int64             `json:"jobId"`
	AttemptNumber  int               `json:"attemptNumber"`
	ConnectionID   string            `json:"connectionId,omitempty"`
	WorkspaceID    string            `json:"workspaceId,omitempty"`
	Image          string            `json:"image"`
	Command        string            `json:"command,omitempty"`
	CPU            float64           `json:"cpu,omitempty"`
	Memory         int               `json:"memory,omitempty"` // MB
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`

	// Config is handed to the job container. Secret references are
	// resolved into it before launch and never serialized back out.
	Config     map[string]any    `json:"config,omitempty"`
	SecretRefs map[string]string `json:"secretRefs,omitempty"` // config key -> secret reference
}
