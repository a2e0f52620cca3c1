package tracing

import (
	"context"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
)

// TracingStageListener adds span events for stage warnings, which do not fail the span.
type TracingStageListener struct {
	tracer metrics.Tracer
}

func NewTracingStageListener(tracer metrics.Tracer) *TracingStageListener {
	return &TracingStageListener{tracer: tracer}
}

func (l *TracingStageListener) BeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
}

func (l *TracingStageListener) AfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	for _, w := range stage.Warnings {
		l.tracer.RecordEvent(ctx, "stage.warning", map[string]interface{}{
			"stage":   stage.StageName,
			"message": w,
		})
	}
}

var _ port.StageListener = (*TracingStageListener)(nil)
