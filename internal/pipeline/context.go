// Package pipeline runs a launch message through the ordered launch stages.
package pipeline

import (
	"fmt"

	"launcher/internal/featureflag"
	"launcher/internal/workload"
)

// StageName identifies a stage in events, metrics and errors.
type StageName string

const (
	StageLoadShed     StageName = "LOAD_SHED"
	StageClaim        StageName = "CLAIM"
	StageCheckStatus  StageName = "CHECK_STATUS"
	StageBuildInput   StageName = "BUILD"
	StageEnforceMutex StageName = "MUTEX"
	StageLaunchPod    StageName = "LAUNCH"
)

// Context is the mutable state threaded through one pipeline run.
// Once Skip is set no later stage body runs.
type Context struct {
	Msg         workload.LaunchMessage
	Skip        bool
	Input       *workload.JobInput
	FlagContext featureflag.Context
}

// NewContext creates the per-run context for msg.
func NewContext(msg workload.LaunchMessage) *Context {
	return &Context{
		Msg: msg,
		FlagContext: featureflag.Context{
			WorkspaceID:    msg.WorkspaceID,
			ConnectionID:   msg.ConnectionID,
			OrganizationID: msg.OrganizationID,
		},
	}
}

// StageError records which stage failed and the context at the point of failure.
type StageError struct {
	Stage StageName
	Ctx   *Context
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for workload %s: %v", e.Stage, e.Ctx.Msg.WorkloadID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
