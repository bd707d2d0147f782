package workload

import (
	"fmt"
	"regexp"

	"launcher/internal/apperrors"
)

// Validation limits
const (
	maxWorkloadIDLength = 253
	maxLabelEntries     = 32
	maxLabelKeyLen      = 63
	maxLabelValueLen    = 63
	maxCPU              = 64    // cores
	maxMemory           = 65536 // MB (64GB)
	maxTimeoutSecs      = 86400 // 24 hours
	maxSecretRefs       = 64
)

var workloadIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks the fields the launcher depends on. Does not modify the message.
func (m *LaunchMessage) Validate() error {
	if m.WorkloadID == "" {
		return apperrors.Validation("workloadId", "workload ID is required")
	}
	if len(m.WorkloadID) > maxWorkloadIDLength {
		return apperrors.Validation("workloadId", fmt.Sprintf("workload ID exceeds maximum length of %d", maxWorkloadIDLength))
	}
	if !workloadIDPattern.MatchString(m.WorkloadID) {
		return apperrors.Validation("workloadId", "workload ID must be alphanumeric (hyphens, dots and underscores allowed)")
	}
	if len(m.Payload) == 0 && m.PayloadRef == "" {
		return apperrors.Validation("payload", "payload or payloadRef is required")
	}
	if len(m.Labels) > maxLabelEntries {
		return apperrors.Validation("labels", fmt.Sprintf("labels exceed maximum of %d entries", maxLabelEntries))
	}
	for k, v := range m.Labels {
		if k == "" || len(k) > maxLabelKeyLen {
			return apperrors.Validation("labels", fmt.Sprintf("label key %q must be 1-%d characters", k, maxLabelKeyLen))
		}
		if len(v) > maxLabelValueLen {
			return apperrors.Validation("labels", fmt.Sprintf("label value for %q exceeds maximum length of %d", k, maxLabelValueLen))
		}
	}
	return nil
}

// Validate checks a decoded job input. Does not modify the input.
func (in *JobInput) Validate() error {
	if in.Image == "" {
		return apperrors.Validation("image", "image is required")
	}
	if in.CPU < 0 || in.CPU > maxCPU {
		return apperrors.Validation("cpu", fmt.Sprintf("CPU must be between 0 and %d cores", maxCPU))
	}
	if in.Memory < 0 || in.Memory > maxMemory {
		return apperrors.Validation("memory", fmt.Sprintf("memory must be between 0 and %d MB", maxMemory))
	}
	if in.TimeoutSeconds < 0 || in.TimeoutSeconds > maxTimeoutSecs {
		return apperrors.Validation("timeoutSeconds", fmt.Sprintf("timeout must be between 0 and %d seconds", maxTimeoutSecs))
	}
	if len(in.SecretRefs) > maxSecretRefs {
		return apperrors.Validation("secretRefs", fmt.Sprintf("secret references exceed maximum of %d", maxSecretRefs))
	}
	for key, ref := range in.SecretRefs {
		if key == "" || ref == "" {
			return apperrors.Validation("secretRefs", "secret reference keys and values must be non-empty")
		}
	}
	return nil
}
