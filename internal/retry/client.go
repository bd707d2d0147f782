package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launcher/internal/apperrors"
	"launcher/internal/featureflag"
)

// StateFetcher loads persisted counters. Implementations return an error
// matching apperrors.ErrNotFound when the job has no state yet.
type StateFetcher interface {
	FetchState(ctx context.Context, jobID int64) (Counters, error)
}

// StatePersister writes counters back after a failed attempt.
type StatePersister interface {
	PersistState(ctx context.Context, jobID int64, connectionID string, c Counters) error
}

// StateClient assembles retry managers from persisted counters and live flags.
type StateClient struct {
	fetcher   StateFetcher
	persister StatePersister // nil when the fetcher is read-only
	flags     featureflag.Client
	defaults  Defaults
}

// NewStateClient creates a StateClient. flags may be nil to use defaults only.
// If fetcher also implements StatePersister, RecordFailure writes through it.
func NewStateClient(fetcher StateFetcher, flags featureflag.Client, defaults Defaults) *StateClient {
	c := &StateClient{fetcher: fetcher, flags: flags, defaults: defaults}
	if p, ok := fetcher.(StatePersister); ok {
		c.persister = p
	}
	return c
}

// Hydrate builds a fresh Manager for the job. Tunables come from the
// defaults with workspace-scoped flags taking precedence. Counters are zero
// when jobID is nil or no state exists; any other fetch error is returned.
func (c *StateClient) Hydrate(ctx context.Context, jobID *int64, workspaceID string) (*Manager, error) {
	limits, policy := resolveTunables(c.flags, c.defaults, featureflag.Workspace(workspaceID))

	var counters Counters
	if jobID != nil {
		fetched, err := c.fetcher.FetchState(ctx, *jobID)
		switch {
		case err == nil:
			counters = fetched
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, fmt.Errorf("fetch retry state for job %d: %w", *jobID, err)
		}
	}

	return &Manager{Counters: counters, Limits: limits, Policy: policy}, nil
}

// resolveTunables applies flag overrides to each of the seven tunables.
func resolveTunables(flags featureflag.Client, d Defaults, fctx featureflag.Context) (Limits, BackoffPolicy) {
	limits := Limits{
		SuccessiveCompleteFailures: featureflag.ResolveInt(flags, featureflag.SuccessiveCompleteFailureLimit, d.Limits.SuccessiveCompleteFailures, fctx),
		TotalCompleteFailures:      featureflag.ResolveInt(flags, featureflag.TotalCompleteFailureLimit, d.Limits.TotalCompleteFailures, fctx),
		SuccessivePartialFailures:  featureflag.ResolveInt(flags, featureflag.SuccessivePartialFailureLimit, d.Limits.SuccessivePartialFailures, fctx),
		TotalPartialFailures:       featureflag.ResolveInt(flags, featureflag.TotalPartialFailureLimit, d.Limits.TotalPartialFailures, fctx),
	}

	policy := BackoffPolicy{
		MinInterval: resolveSeconds(flags, featureflag.BackoffMinIntervalSeconds, d.Policy.MinInterval, fctx),
		MaxInterval: resolveSeconds(flags, featureflag.BackoffMaxIntervalSeconds, d.Policy.MaxInterval, fctx),
		Base:        featureflag.ResolveInt(flags, featureflag.BackoffBase, d.Policy.Base, fctx),
	}
	return limits, policy
}

func resolveSeconds(flags featureflag.Client, key string, def time.Duration, fctx featureflag.Context) time.Duration {
	if flags == nil {
		return def
	}
	if v, ok := flags.Int(key, fctx); ok {
		return time.Duration(v) * time.Second
	}
	return def
}

// RecordFailure increments the manager's counters and persists them.
// The in-memory manager is updated even when persisting fails.
func (c *StateClient) RecordFailure(ctx context.Context, m *Manager, jobID int64, connectionID string, partial bool) error {
	m.IncrementFailure(partial)
	if c.persister == nil {
		return nil
	}
	if err := c.persister.PersistState(ctx, jobID, connectionID, m.Counters); err != nil {
		return fmt.Errorf("persist retry state for job %d: %w", jobID, err)
	}
	return nil
}
