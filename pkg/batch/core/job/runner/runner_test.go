package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	tasklet "github.com/tigerroll/capture/pkg/batch/engine/step/tasklet"
	inmemory "github.com/tigerroll/capture/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

type recordingListener struct {
	events []string
}

func (l *recordingListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {
	l.events = append(l.events, "beforeRun")
}

func (l *recordingListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	l.events = append(l.events, "afterRun:"+run.Status.String())
}

func (l *recordingListener) BeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	l.events = append(l.events, "before:"+stage.StageName)
}

func (l *recordingListener) AfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	l.events = append(l.events, "after:"+stage.StageName+":"+stage.Status.String())
}

func ok(calls *[]string, name string) port.Tasklet {
	return port.TaskletFunc(func(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
		*calls = append(*calls, name)
		return model.ExitStatusCompleted, nil
	})
}

func TestSimpleJobRunner_SequentialStages(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	listener := &recordingListener{}
	stageListeners := []port.StageListener{listener}
	var calls []string

	job := NewSequentialJob("capture", []port.Step{
		tasklet.NewTaskletStep("import", true, ok(&calls, "import"), repo, stageListeners, nil),
		tasklet.NewTaskletStep("findBadAntennas", false, ok(&calls, "findBadAntennas"), repo, stageListeners, nil),
		tasklet.NewTaskletStep("initialFlagging", true, ok(&calls, "initialFlagging"), repo, stageListeners, nil),
	})
	runner := NewSimpleJobRunner(repo, []port.RunListener{listener}, nil)

	run, err := runner.Run(context.Background(), job, "obs.ms", "fp")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	assert.Equal(t, []string{"import", "initialFlagging"}, calls)
	assert.Equal(t, []string{
		"beforeRun",
		"before:import", "after:import:COMPLETED",
		"after:findBadAntennas:SKIPPED",
		"before:initialFlagging", "after:initialFlagging:COMPLETED",
		"afterRun:COMPLETED",
	}, listener.events)

	stored, err := repo.FindStageExecutionsByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, model.BatchStatusSkipped, stored[1].Status)
	assert.Equal(t, model.ExitStatusNoOp, stored[1].ExitStatus)
}

func TestSimpleJobRunner_WarningDoesNotStopRun(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	var calls []string
	warn := port.TaskletFunc(func(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
		return model.ExitStatusCompleted, exception.NewEmptyRoleSetWarning("calibration", "amplitude", "initial calibration")
	})

	job := NewSequentialJob("capture", []port.Step{
		tasklet.NewTaskletStep("initialCalibration", true, warn, repo, nil, nil),
		tasklet.NewTaskletStep("split", true, ok(&calls, "split"), repo, nil, nil),
	})

	run, err := NewSimpleJobRunner(repo, nil, nil).Run(context.Background(), job, "obs.ms", "fp")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	assert.Equal(t, []string{"split"}, calls)
	assert.Equal(t, model.ExitStatusNoOp, run.StageExecutions[0].ExitStatus)
	assert.Len(t, run.StageExecutions[0].Warnings, 1)
}

func TestSimpleJobRunner_FatalErrorStopsRun(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	var calls []string
	fail := port.TaskletFunc(func(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
		return model.ExitStatusFailed, exception.NewMissingInputError("selfcal", "target-selfcal0.ms")
	})

	job := NewSequentialJob("capture", []port.Step{
		tasklet.NewTaskletStep("selfCalibration", true, fail, repo, nil, nil),
		tasklet.NewTaskletStep("publish", true, ok(&calls, "publish"), repo, nil, nil),
	})

	run, err := NewSimpleJobRunner(repo, nil, nil).Run(context.Background(), job, "obs.ms", "fp")
	require.Error(t, err)
	assert.True(t, exception.IsFatal(err))
	assert.Equal(t, exception.KindMissingInput, exception.KindOf(err))
	assert.Equal(t, model.BatchStatusFailed, run.Status)
	assert.Empty(t, calls)
	require.Len(t, run.StageExecutions, 1)

	stored, err := repo.FindRunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Failures)
}

func TestSimpleJobRunner_CancelledContextStopsRun(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := port.TaskletFunc(func(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
		cancel()
		return model.ExitStatusFailed, exception.NewEngineCallError("engine", "image", ctx.Err())
	})

	job := NewSequentialJob("capture", []port.Step{
		tasklet.NewTaskletStep("selfCalibration", true, cancelling, repo, nil, nil),
	})

	run, err := NewSimpleJobRunner(repo, nil, nil).Run(ctx, job, "obs.ms", "fp")
	require.Error(t, err)
	assert.Equal(t, model.BatchStatusStopped, run.Status)
	assert.Equal(t, model.BatchStatusStopped, run.StageExecutions[0].Status)
}
