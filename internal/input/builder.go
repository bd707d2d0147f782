// Package input turns a launch message into a validated job input, fetching
// offloaded payloads and resolving secret references along the way.
package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"

	"launcher/internal/apperrors"
	"launcher/internal/workload"
)

// maxPayloadBytes bounds both inline and fetched payloads.
const maxPayloadBytes = 4 << 20

// Fetcher loads an offloaded payload by reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// SecretResolver returns the plaintext value behind a secret reference.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Builder implements pipeline.InputBuilder.
type Builder struct {
	fetcher Fetcher
	secrets SecretResolver
}

// NewBuilder creates a Builder. Either collaborator may be nil; messages
// that need a missing one fail validation.
func NewBuilder(fetcher Fetcher, secrets SecretResolver) *Builder {
	return &Builder{fetcher: fetcher, secrets: secrets}
}

// Build decodes and validates the message payload. Unknown fields are
// rejected. Connection and workspace IDs default to the message's.
func (b *Builder) Build(ctx context.Context, msg *workload.LaunchMessage) (*workload.JobInput, error) {
	data, err := b.payload(ctx, msg)
	if err != nil {
		return nil, err
	}

	in, err := decode(data)
	if err != nil {
		return nil, err
	}
	if in.ConnectionID == "" {
		in.ConnectionID = msg.ConnectionID
	}
	if in.WorkspaceID == "" {
		in.WorkspaceID = msg.WorkspaceID
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := b.resolveSecrets(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (b *Builder) payload(ctx context.Context, msg *workload.LaunchMessage) ([]byte, error) {
	switch {
	case len(msg.Payload) > 0:
		if len(msg.Payload) > maxPayloadBytes {
			return nil, apperrors.Validation("payload", fmt.Sprintf("payload exceeds %d bytes", maxPayloadBytes))
		}
		return msg.Payload, nil
	case msg.PayloadRef != "":
		if b.fetcher == nil {
			return nil, apperrors.Validation("payloadRef", "payload references are not supported without object storage")
		}
		data, err := b.fetcher.Fetch(ctx, msg.PayloadRef)
		if err != nil {
			return nil, fmt.Errorf("fetch payload %s: %w", msg.PayloadRef, err)
		}
		return data, nil
	default:
		return nil, apperrors.Validation("payload", "payload or payloadRef is required")
	}
}

func decode(data []byte) (*workload.JobInput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var in workload.JobInput
	if err := dec.Decode(&in); err != nil {
		return nil, apperrors.Validation("payload", fmt.Sprintf("invalid job input: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, apperrors.Validation("payload", "job input must be a single JSON object")
	}
	return &in, nil
}

// resolveSecrets writes each referenced secret into Config under its key.
func (b *Builder) resolveSecrets(ctx context.Context, in *workload.JobInput) error {
	if len(in.SecretRefs) == 0 {
		return nil
	}
	if b.secrets == nil {
		return apperrors.Validation("secretRefs", "secret references are not supported without a secret resolver")
	}

	cfg := maps.Clone(in.Config)
	if cfg == nil {
		cfg = make(map[string]any, len(in.SecretRefs))
	}
	for key, ref := range in.SecretRefs {
		value, err := b.secrets.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve secret for %s: %w", key, err)
		}
		cfg[key] = value
	}
	in.Config = cfg
	return nil
}
