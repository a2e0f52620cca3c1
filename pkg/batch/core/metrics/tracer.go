package metrics

import (
	"context"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing.
type Tracer interface {
	// StartRunSpan starts a span covering the whole run. The returned function ends it.
	StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func())

	// StartStageSpan starts a child span for one stage.
	StartStageSpan(ctx context.Context, stage *model.StageExecution) (context.Context, func())

	// StartEngineSpan starts a span around one engine call.
	StartEngineSpan(ctx context.Context, operation string) (context.Context, func(err error))

	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
