package port

import (
	"context"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

type contextKey int

const (
	runKey contextKey = iota
	stageKey
	generationKey
)

// WithRun returns a context carrying the current PipelineRun.
func WithRun(ctx context.Context, run *model.PipelineRun) context.Context {
	return context.WithValue(ctx, runKey, run)
}

// RunFromContext returns the PipelineRun set by WithRun.
func RunFromContext(ctx context.Context) (*model.PipelineRun, bool) {
	run, ok := ctx.Value(runKey).(*model.PipelineRun)
	return run, ok && run != nil
}

// WithStage returns a context carrying the executing StageExecution.
func WithStage(ctx context.Context, stage *model.StageExecution) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the StageExecution set by WithStage.
func StageFromContext(ctx context.Context) (*model.StageExecution, bool) {
	stage, ok := ctx.Value(stageKey).(*model.StageExecution)
	return stage, ok && stage != nil
}

// WithGeneration tags the context with a self-calibration iteration.
func WithGeneration(ctx context.Context, generation int) context.Context {
	return context.WithValue(ctx, generationKey, generation)
}

// GenerationFromContext returns the iteration set by WithGeneration, or -1.
func GenerationFromContext(ctx context.Context) int {
	if g, ok := ctx.Value(generationKey).(int); ok {
		return g
	}
	return -1
}
