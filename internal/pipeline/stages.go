package pipeline

import (
	"context"
	"log/slog"
	"maps"

	"launcher/internal/featureflag"
	"launcher/internal/workload"
)

// LoadShedReason is reported when a workload is failed by load shedding.
const LoadShedReason = "Workload launch was load shed."

// Claimer asks the control plane whether this dataplane may run a workload.
type Claimer interface {
	Claim(ctx context.Context, workloadID, dataplaneID string) (bool, error)
}

// StatusReporter updates workload status. Callers treat errors as best-effort.
type StatusReporter interface {
	ReportRunning(ctx context.Context, workloadID string) error
	ReportFailed(ctx context.Context, workloadID, reason string) error
}

// InputBuilder materializes the typed job input for a message.
type InputBuilder interface {
	Build(ctx context.Context, msg *workload.LaunchMessage) (*workload.JobInput, error)
}

// PodChecker reports whether a non-terminal pod already runs the workload.
type PodChecker interface {
	PodsExistForWorkload(ctx context.Context, workloadID string) bool
}

// MutexEnforcer evicts pods holding a mutex key.
type MutexEnforcer interface {
	DeleteMutexPods(ctx context.Context, mutexKey, reason string) (deleted int, ok bool)
}

// PodLauncher creates the workload pod.
type PodLauncher interface {
	LaunchPod(ctx context.Context, workloadID string, input *workload.JobInput, labels map[string]string, logPath string) error
}

// LoadShedStage fails and skips workloads while the load-shed flag is on.
type LoadShedStage struct {
	Flags  featureflag.Client
	Status StatusReporter
}

func (s *LoadShedStage) Name() StageName { return StageLoadShed }

func (s *LoadShedStage) Run(ctx context.Context, pc *Context) error {
	if !featureflag.ResolveBool(s.Flags, featureflag.LoadShedWorkloadLauncher, false, pc.FlagContext) {
		return nil
	}

	slog.InfoContext(ctx, "Load shedding workload", "workloadId", pc.Msg.WorkloadID)
	if err := s.Status.ReportFailed(ctx, pc.Msg.WorkloadID, LoadShedReason); err != nil {
		slog.WarnContext(ctx, "Failed to report load shed workload as failed", "workloadId", pc.Msg.WorkloadID, "error", err)
	}
	pc.Skip = true
	return nil
}

// ClaimStage skips workloads owned by another dataplane. Claim API errors
// propagate: without a definite answer the workload must not launch.
type ClaimStage struct {
	Claims      Claimer
	DataplaneID string
}

func (s *ClaimStage) Name() StageName { return StageClaim }

func (s *ClaimStage) Run(ctx context.Context, pc *Context) error {
	claimed, err := s.Claims.Claim(ctx, pc.Msg.WorkloadID, s.DataplaneID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.InfoContext(ctx, "Workload claimed elsewhere, skipping", "workloadId", pc.Msg.WorkloadID, "dataplaneId", s.DataplaneID)
		pc.Skip = true
	}
	return nil
}

// CheckStatusStage skips workloads whose pod is already running.
type CheckStatusStage struct {
	Pods   PodChecker
	Status StatusReporter
}

func (s *CheckStatusStage) Name() StageName { return StageCheckStatus }

func (s *CheckStatusStage) Run(ctx context.Context, pc *Context) error {
	if !s.Pods.PodsExistForWorkload(ctx, pc.Msg.WorkloadID) {
		return nil
	}

	slog.InfoContext(ctx, "Workload pod already running, skipping launch", "workloadId", pc.Msg.WorkloadID)
	if err := s.Status.ReportRunning(ctx, pc.Msg.WorkloadID); err != nil {
		slog.WarnContext(ctx, "Failed to report workload as running", "workloadId", pc.Msg.WorkloadID, "error", err)
	}
	pc.Skip = true
	return nil
}

// BuildInputStage decodes the payload and resolves secrets.
type BuildInputStage struct {
	Builder InputBuilder
}

func (s *BuildInputStage) Name() StageName { return StageBuildInput }

func (s *BuildInputStage) Run(ctx context.Context, pc *Context) error {
	input, err := s.Builder.Build(ctx, &pc.Msg)
	if err != nil {
		return err
	}
	pc.Input = input
	return nil
}

// EnforceMutexStage evicts existing pods sharing the workload's mutex key.
type EnforceMutexStage struct {
	Pods MutexEnforcer
}

func (s *EnforceMutexStage) Name() StageName { return StageEnforceMutex }

func (s *EnforceMutexStage) Run(ctx context.Context, pc *Context) error {
	key := pc.Msg.Mutex()
	if key == "" {
		return nil
	}

	deleted, ok := s.Pods.DeleteMutexPods(ctx, key, "superseded by workload "+pc.Msg.WorkloadID)
	if !ok {
		slog.WarnContext(ctx, "Failed to evict all pods for mutex key", "workloadId", pc.Msg.WorkloadID, "mutexKey", key)
	} else if deleted > 0 {
		slog.InfoContext(ctx, "Evicted pods for mutex key", "workloadId", pc.Msg.WorkloadID, "mutexKey", key, "deleted", deleted)
	}
	return nil
}

// LaunchPodStage creates the workload pod.
type LaunchPodStage struct {
	Pods PodLauncher
}

func (s *LaunchPodStage) Name() StageName { return StageLaunchPod }

func (s *LaunchPodStage) Run(ctx context.Context, pc *Context) error {
	labels := maps.Clone(pc.Msg.Labels)
	if labels == nil {
		labels = map[string]string{}
	}
	if key := pc.Msg.Mutex(); key != "" {
		labels[workload.LabelMutexKey] = key
	}
	if _, ok := labels[workload.LabelType]; !ok && pc.Msg.Type != "" {
		labels[workload.LabelType] = pc.Msg.Type
	}
	return s.Pods.LaunchPod(ctx, pc.Msg.WorkloadID, pc.Input, labels, pc.Msg.LogPath)
}

// PodClient is the cluster access the pipeline needs.
type PodClient interface {
	PodChecker
	MutexEnforcer
	PodLauncher
}

// Deps are the collaborators of the standard launch pipeline.
type Deps struct {
	Flags       featureflag.Client
	Claims      Claimer
	Status      StatusReporter
	Inputs      InputBuilder
	Pods        PodClient
	DataplaneID string
	Events      EventRecorder
	Reporter    FailureReporter
}

// NewLaunchPipeline builds the pipeline in its fixed order:
// load shed, claim, check status, build input, enforce mutex, launch pod.
func NewLaunchPipeline(d Deps) *Pipeline {
	return New([]Stage{
		&LoadShedStage{Flags: d.Flags, Status: d.Status},
		&ClaimStage{Claims: d.Claims, DataplaneID: d.DataplaneID},
		&CheckStatusStage{Pods: d.Pods, Status: d.Status},
		&BuildInputStage{Builder: d.Inputs},
		&EnforceMutexStage{Pods: d.Pods},
		&LaunchPodStage{Pods: d.Pods},
	}, d.Events, d.Reporter)
}
