package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun)   {}
func (r *NoOpMetricRecorder) RecordStageStart(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
}
func (r *NoOpMetricRecorder) RecordStageEnd(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
}
func (r *NoOpMetricRecorder) RecordFlagFraction(ctx context.Context, phase, field string, fraction float64) {
}
func (r *NoOpMetricRecorder) RecordSelfCalIteration(ctx context.Context, field string, iteration, niter int, mode string) {
}
func (r *NoOpMetricRecorder) RecordEngineCall(ctx context.Context, operation string, duration time.Duration, err error) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}
func (r *NoOpMetricRecorder) Flush(ctx context.Context) error { return nil }

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStageSpan(ctx context.Context, stage *model.StageExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartEngineSpan(ctx context.Context, operation string) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
