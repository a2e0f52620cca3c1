package runner

import (
	"context"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// SequentialJob is an implementation of port.Job that executes its steps strictly in order.
// The first fatal error stops the run; the remaining steps are not recorded.
type SequentialJob struct {
	name  string
	steps []port.Step
}

// Verify that SequentialJob implements the port.Job interface.
var _ port.Job = (*SequentialJob)(nil)

// NewSequentialJob creates a new instance of SequentialJob.
func NewSequentialJob(name string, steps []port.Step) *SequentialJob {
	return &SequentialJob{name: name, steps: steps}
}

// JobName returns the job name.
func (j *SequentialJob) JobName() string {
	return j.name
}

// Steps returns the steps in execution order.
func (j *SequentialJob) Steps() []port.Step {
	return j.steps
}

// Run executes every step against run.
func (j *SequentialJob) Run(ctx context.Context, run *model.PipelineRun) error {
	for _, step := range j.steps {
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError(j.name, "run cancelled before stage "+step.ID(), err, exception.KindInternal)
		}
		stage := model.NewStageExecution(run, step.ID())
		if err := step.Execute(ctx, run, stage); err != nil {
			logger.Event("stage failed",
				"stage", step.ID(),
				"kind", exception.KindOf(err).String(),
				"error", err.Error(),
			)
			return err
		}
	}
	return nil
}
