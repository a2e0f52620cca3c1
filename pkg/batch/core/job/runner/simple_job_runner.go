package runner

import (
	"context"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// SimpleJobRunner is an implementation of port.JobRunner. It owns the PipelineRun lifecycle:
// creation, listener notification, tracing and final persistence.
type SimpleJobRunner struct {
	repo         repository.RunRepository
	runListeners []port.RunListener
	tracer       metrics.Tracer
}

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
func NewSimpleJobRunner(repo repository.RunRepository, runListeners []port.RunListener, tracer metrics.Tracer) *SimpleJobRunner {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJobRunner{repo: repo, runListeners: runListeners, tracer: tracer}
}

// Run creates a PipelineRun for dataset and executes job. The run is returned even when it failed.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, dataset, fingerprint string) (*model.PipelineRun, error) {
	run := model.NewPipelineRun(job.JobName(), dataset, fingerprint)
	if err := r.repo.SaveRun(ctx, run); err != nil {
		return nil, exception.NewBatchError("runner", "failed to save PipelineRun", err, exception.KindPersistence)
	}

	ctx = port.WithRun(ctx, run)
	ctx, finishSpan := r.tracer.StartRunSpan(ctx, run)
	defer finishSpan()

	run.MarkAsStarted()
	if err := r.repo.UpdateRun(ctx, run); err != nil {
		logger.Errorf("JobRunner: Failed to update PipelineRun (ID: %s) status to STARTED: %v", run.ID, err)
	}
	logger.Infof("Starting job '%s' on %s (Run ID: %s).", job.JobName(), dataset, run.ID)

	for _, l := range r.runListeners {
		l.BeforeRun(ctx, run)
	}

	err := job.Run(ctx, run)

	switch {
	case err == nil:
		run.MarkAsCompleted()
	case ctx.Err() != nil:
		run.MarkAsStopped()
		run.AddFailureException(err)
	default:
		r.tracer.RecordError(ctx, "runner", err)
		run.MarkAsFailed(err)
	}

	for _, l := range r.runListeners {
		l.AfterRun(ctx, run)
	}

	// The final update must land even when ctx was cancelled.
	if updateErr := r.repo.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
		logger.Errorf("JobRunner: Failed to update final PipelineRun (ID: %s) state: %v", run.ID, updateErr)
		if err == nil {
			err = exception.NewBatchError("runner", "failed to update final PipelineRun state", updateErr, exception.KindPersistence)
		}
	}

	logger.Infof("Job '%s' (Run ID: %s) finished. Status: %s, ExitStatus: %s",
		job.JobName(), run.ID, run.Status, run.ExitStatus)
	return run, err
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
