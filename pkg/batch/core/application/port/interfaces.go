// Package port defines the core interfaces (ports) of the pipeline orchestrator.
// These interfaces abstract the orchestrator's capabilities and dependencies,
// allowing stages to be implemented and tested in isolation.
package port

import (
	"context"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// Tasklet is the unit of work behind one pipeline stage.
type Tasklet interface {
	// Execute runs the stage logic.
	//
	// Parameters:
	//   ctx: The context for the operation. Cancellation aborts the run.
	//   run: The current PipelineRun.
	//   stage: The StageExecution being executed.
	//
	// Returns:
	//   model.ExitStatus: The exit status to record for the stage.
	//   error: A *exception.BatchError. Warning kinds do not fail the stage.
	Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error)
}

// TaskletFunc adapts a function to the Tasklet interface.
type TaskletFunc func(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error)

// Execute calls f.
func (f TaskletFunc) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	return f(ctx, run, stage)
}

// Step is one stage of a job.
type Step interface {
	// ID returns the unique identifier of the step within the job.
	ID() string
	// Enabled reports whether the configuration enables the step.
	Enabled() bool
	// Execute runs the step and persists its StageExecution.
	//
	// Returns:
	//   error: A fatal error that must stop the run. Warnings are recorded on the stage instead.
	Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) error
}

// Job is an ordered list of steps executed strictly in sequence.
type Job interface {
	// JobName returns the logical name of the job.
	JobName() string
	// Steps returns the steps in execution order.
	Steps() []Step
	// Run executes every step against run.
	Run(ctx context.Context, run *model.PipelineRun) error
}

// JobRunner creates the PipelineRun for a job, executes it and persists the final state.
type JobRunner interface {
	Run(ctx context.Context, job Job, dataset, fingerprint string) (*model.PipelineRun, error)
}

// RunListener is notified around the whole run.
type RunListener interface {
	BeforeRun(ctx context.Context, run *model.PipelineRun)
	AfterRun(ctx context.Context, run *model.PipelineRun)
}

// StageListener is notified around each executed stage. Skipped stages only see AfterStage.
type StageListener interface {
	BeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution)
	AfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution)
}
