package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"launcher/internal/workload"
)

// Stage is one step of the launch pipeline. A stage mutates the context it
// is given and returns an error to abort the run.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, pc *Context) error
}

// EventRecorder observes every stage, including stages bypassed by Skip.
type EventRecorder interface {
	StageStarted(ctx context.Context, stage StageName, pc *Context)
	StageSucceeded(ctx context.Context, stage StageName, pc *Context, skipped bool, elapsed time.Duration)
	StageFailed(ctx context.Context, stage StageName, pc *Context, err error, elapsed time.Duration)
}

// FailureReporter is told about every stage failure.
type FailureReporter interface {
	ReportFailure(ctx context.Context, stageErr *StageError)
}

// Pipeline runs stages strictly in order.
type Pipeline struct {
	stages   []Stage
	events   EventRecorder
	reporter FailureReporter
}

// New creates a pipeline over stages. events and reporter may be nil.
func New(stages []Stage, events EventRecorder, reporter FailureReporter) *Pipeline {
	if events == nil {
		events = NewEventLogger(nil)
	}
	return &Pipeline{stages: stages, events: events, reporter: reporter}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []StageName {
	names := make([]StageName, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run processes msg. A skipped run returns a nil error; the returned context
// reports whether Skip was set. Any stage failure is returned as *StageError.
func (p *Pipeline) Run(ctx context.Context, msg workload.LaunchMessage) (*Context, error) {
	pc := NewContext(msg)

	for _, stage := range p.stages {
		name := stage.Name()
		start := time.Now()
		p.events.StageStarted(ctx, name, pc)

		if pc.Skip {
			p.events.StageSucceeded(ctx, name, pc, true, time.Since(start))
			continue
		}

		if err := runStage(ctx, stage, pc); err != nil {
			p.events.StageFailed(ctx, name, pc, err, time.Since(start))
			stageErr := &StageError{Stage: name, Ctx: pc, Err: err}
			if p.reporter != nil {
				p.reporter.ReportFailure(ctx, stageErr)
			}
			return pc, stageErr
		}

		p.events.StageSucceeded(ctx, name, pc, false, time.Since(start))
	}

	return pc, nil
}

// runStage converts a panicking stage into an error.
func runStage(ctx context.Context, stage Stage, pc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Stage panicked", "stage", stage.Name(), "workloadId", pc.Msg.WorkloadID, "panic", r)
			err = fmt.Errorf("panic in stage %s: %v", stage.Name(), r)
		}
	}()
	return stage.Run(ctx, pc)
}
