package inmemory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	"github.com/tigerroll/capture/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	run := model.NewPipelineRun("capture", "obs.ms", "abc")
	require.NoError(t, repo.SaveRun(ctx, run))
	assert.Error(t, repo.SaveRun(ctx, run), "duplicate IDs are rejected")

	run.MarkAsStarted()
	require.NoError(t, repo.UpdateRun(ctx, run))
	assert.Equal(t, 1, run.Version)

	stale := *run
	stale.Version = 0
	err := repo.UpdateRun(ctx, &stale)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))

	se := model.NewStageExecution(run, "flag_init")
	require.NoError(t, repo.SaveStageExecution(ctx, se))
	se.MarkAsStarted()
	se.MarkAsCompleted(model.ExitStatusCompleted)
	require.NoError(t, repo.UpdateStageExecution(ctx, se))

	found, err := repo.FindRunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarted, found.Status)
	require.Len(t, found.StageExecutions, 1)
	assert.Equal(t, model.BatchStatusCompleted, found.StageExecutions[0].Status)

	_, err = repo.FindRunByID(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrRunNotFound))
}

func TestFindRecentRuns(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	base := time.Now()
	for i := 0; i < 3; i++ {
		run := model.NewPipelineRun("capture", "obs.ms", "abc")
		run.StartTime = base.Add(time.Duration(i) * time.Minute)
		run.Dataset = []string{"a.ms", "b.ms", "c.ms"}[i]
		require.NoError(t, repo.SaveRun(ctx, run))
	}

	runs, err := repo.FindRecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c.ms", runs[0].Dataset)
	assert.Equal(t, "b.ms", runs[1].Dataset)
}

func TestArtifactLedger(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	require.NoError(t, repo.SaveArtifact(ctx, model.NewArtifact("r1", "obs.ms.K1", model.ArtifactCalibrationTable, "calibration", -1)))
	require.NoError(t, repo.SaveArtifact(ctx, model.NewArtifact("r1", "obs.ms.K1", model.ArtifactCalibrationTable, "calibration", -1)))
	require.NoError(t, repo.SaveArtifact(ctx, model.NewArtifact("r2", "other", model.ArtifactDataset, "split", -1)))

	require.NoError(t, repo.MarkArtifactDeleted(ctx, "r1", "obs.ms.K1"))
	assert.ErrorIs(t, repo.MarkArtifactDeleted(ctx, "r1", "nope"), repository.ErrArtifactNotFound)

	list, err := repo.FindArtifactsByRunID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Live(), "the older record stays live")
	assert.False(t, list[1].Live(), "the newest live record is the one deleted")
}
