// Package metrics defines the recording and tracing abstractions the pipeline reports through.
// Backends live in infrastructure/metrics; the no-op implementations here are the default.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// MetricRecorder records pipeline metrics.
//
// This interface lets the runner and the stages report without knowing whether the numbers end up
// in a Prometheus textfile, an OTLP collector, or nowhere.
type MetricRecorder interface {
	// RecordRunStart records the start of a PipelineRun.
	RecordRunStart(ctx context.Context, run *model.PipelineRun)

	// RecordRunEnd records the end of a PipelineRun.
	RecordRunEnd(ctx context.Context, run *model.PipelineRun)

	// RecordStageStart records the start of a stage.
	RecordStageStart(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution)

	// RecordStageEnd records the end of a stage, including its duration and exit status.
	RecordStageEnd(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution)

	// RecordFlagFraction records the flagged fraction (0..1) of a field after a flagging phase.
	RecordFlagFraction(ctx context.Context, phase, field string, fraction float64)

	// RecordSelfCalIteration records one completed self-calibration iteration.
	RecordSelfCalIteration(ctx context.Context, field string, iteration, niter int, mode string)

	// RecordEngineCall records one call into the processing engine.
	//
	// operation: the engine method, e.g. "Flag" or "SolveGain".
	// err: the error the call returned, or nil.
	RecordEngineCall(ctx context.Context, operation string, duration time.Duration, err error)

	// RecordDuration records the execution time of an arbitrary operation.
	// tags: additional attributes, e.g. {"stage": "selfcal"}.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)

	// Flush pushes or writes whatever the backend has buffered. It is called once at the end of a run.
	Flush(ctx context.Context) error
}
