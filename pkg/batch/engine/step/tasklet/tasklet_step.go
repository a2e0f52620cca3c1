package tasklet

import (
	"context"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// TaskletStep is an implementation of port.Step that runs a single Tasklet.
type TaskletStep struct {
	id             string
	enabled        bool
	tasklet        port.Tasklet
	repo           repository.RunRepository
	stageListeners []port.StageListener
	tracer         metrics.Tracer
}

// NewTaskletStep creates a new TaskletStep instance. A disabled step is recorded as SKIPPED.
func NewTaskletStep(
	id string,
	enabled bool,
	tasklet port.Tasklet,
	repo repository.RunRepository,
	stageListeners []port.StageListener,
	tracer metrics.Tracer,
) *TaskletStep {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &TaskletStep{
		id:             id,
		enabled:        enabled,
		tasklet:        tasklet,
		repo:           repo,
		stageListeners: stageListeners,
		tracer:         tracer,
	}
}

// ID returns the step ID.
func (s *TaskletStep) ID() string {
	return s.id
}

// Enabled reports whether the step runs.
func (s *TaskletStep) Enabled() bool {
	return s.enabled
}

func (s *TaskletStep) notifyBeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	for _, l := range s.stageListeners {
		l.BeforeStage(ctx, run, stage)
	}
}

func (s *TaskletStep) notifyAfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	for _, l := range s.stageListeners {
		l.AfterStage(ctx, run, stage)
	}
}

// Execute runs the Tasklet and persists the outcome.
func (s *TaskletStep) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (err error) {
	if err := s.repo.SaveStageExecution(ctx, stage); err != nil {
		return exception.NewBatchError(s.id, "failed to save StageExecution", err, exception.KindPersistence)
	}

	if !s.enabled {
		logger.Debugf("Stage '%s' is disabled, skipping.", s.id)
		stage.MarkAsSkipped()
		s.notifyAfterStage(ctx, run, stage)
		return s.persist(ctx, stage)
	}

	logger.Infof("Stage '%s' executing.", s.id)

	// 1. Update StageExecution status to STARTED
	stage.MarkAsStarted()
	if err := s.repo.UpdateStageExecution(ctx, stage); err != nil {
		return exception.NewBatchError(s.id, "failed to update StageExecution status to STARTED", err, exception.KindPersistence)
	}

	ctx = port.WithStage(ctx, stage)
	ctx, finishSpan := s.tracer.StartStageSpan(ctx, stage)
	defer finishSpan()

	// 2. Listener notification (BeforeStage)
	s.notifyBeforeStage(ctx, run, stage)

	// 3. Execute Tasklet
	exitStatus, err := s.tasklet.Execute(ctx, run, stage)

	// 4. Classify the outcome
	switch {
	case err == nil:
		stage.MarkAsCompleted(exitStatus)
	case exception.IsWarning(err):
		logger.Warnf("Stage '%s': %v", s.id, err)
		stage.AddWarning(err)
		stage.MarkAsCompleted(model.ExitStatusNoOp)
		err = nil
	case ctx.Err() != nil:
		s.tracer.RecordError(ctx, s.id, err)
		stage.MarkAsStopped()
		stage.AddFailureException(err)
	default:
		s.tracer.RecordError(ctx, s.id, err)
		stage.MarkAsFailed(err)
	}

	// 5. Listener notification (AfterStage)
	s.notifyAfterStage(ctx, run, stage)

	// 6. Persistence
	if updateErr := s.persist(ctx, stage); updateErr != nil && err == nil {
		err = updateErr
	}

	logger.Infof("Stage '%s' finished. Status: %s, ExitStatus: %s", s.id, stage.Status, stage.ExitStatus)
	return err
}

func (s *TaskletStep) persist(ctx context.Context, stage *model.StageExecution) error {
	// The final update must land even when ctx was cancelled.
	if err := s.repo.UpdateStageExecution(context.WithoutCancel(ctx), stage); err != nil {
		logger.Errorf("Stage '%s': failed to update final StageExecution state: %v", s.id, err)
		return exception.NewBatchError(s.id, "failed to update final StageExecution state", err, exception.KindPersistence)
	}
	return nil
}

// Verify that TaskletStep implements the port.Step interface.
var _ port.Step = (*TaskletStep)(nil)
