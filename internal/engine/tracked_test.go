package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/engine/simulated"
	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	inmemory "github.com/tigerroll/capture/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

type callCounter struct {
	metrics.NoOpMetricRecorder
	ops    []string
	failed int
}

func (c *callCounter) RecordEngineCall(ctx context.Context, operation string, d time.Duration, err error) {
	c.ops = append(c.ops, operation)
	if err != nil {
		c.failed++
	}
}

func runContext(t *testing.T, repo *inmemory.InMemoryRunRepository) (context.Context, *model.PipelineRun) {
	t.Helper()
	run := model.NewPipelineRun("capture", "obs.ms", "fp")
	require.NoError(t, repo.SaveRun(context.Background(), run))
	stage := model.NewStageExecution(run, "selfcal")
	ctx := port.WithStage(port.WithRun(context.Background(), run), stage)
	return port.WithGeneration(ctx, 1), run
}

func TestTrackedRecordsArtifacts(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	rec := &callCounter{}
	e := engine.NewTracked(simulated.New(simulated.SampleFixture("obs.ms", "")), repo, rec, nil)
	ctx, run := runContext(t, repo)

	_, err := e.SolveGain(ctx, "obs.ms", engine.SolveRequest{Table: "TARGETp1.GT"})
	require.NoError(t, err)
	_, err = e.SolveGain(ctx, "obs.ms", engine.SolveRequest{Table: "TARGETp1.GT", Append: true})
	require.NoError(t, err)
	img, err := e.Image(ctx, "obs.ms", engine.ImageRequest{Name: "TARGET-selfcalimg1", NTerms: 1, Niter: 200})
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, "TARGETp1.GT"))

	artifacts, err := repo.FindArtifactsByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "TARGETp1.GT", artifacts[0].Name)
	assert.Equal(t, model.ArtifactCalibrationTable, artifacts[0].Kind)
	assert.False(t, artifacts[0].Live())
	assert.Equal(t, img.Name, artifacts[1].Name)
	assert.Equal(t, "selfcal", artifacts[1].Stage)
	assert.Equal(t, 1, artifacts[1].Generation)

	assert.Equal(t, []string{"SolveGain", "SolveGain", "Image", "Delete"}, rec.ops)
}

func TestTrackedWrapsFailures(t *testing.T) {
	sim := simulated.New(simulated.SampleFixture("obs.ms", ""))
	sim.FailOn("Apply", assert.AnError)
	rec := &callCounter{}
	e := engine.NewTracked(sim, nil, rec, nil)

	err := e.Apply(context.Background(), "obs.ms", engine.ApplyRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrEngineCall)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, exception.IsFatal(err))
	assert.Equal(t, 1, rec.failed)
}

func TestTrackedWithoutRunSkipsLedger(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	e := engine.NewTracked(simulated.New(simulated.SampleFixture("obs.ms", "")), repo, nil, nil)

	_, err := e.Transform(context.Background(), "obs.ms", engine.TransformRequest{Output: "TARGETsplit.ms", Fields: []string{"TARGET"}})
	require.NoError(t, err)
	runs, err := repo.FindRecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
