package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

const instrumentationName = "github.com/tigerroll/capture"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer on tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartRunSpan starts the root span of a run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "run "+run.JobName, trace.WithAttributes(
		attribute.String("capture.run_id", run.ID),
		attribute.String("capture.dataset", run.Dataset),
		attribute.String("capture.config_fingerprint", run.ConfigFingerprint),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("capture.status", run.Status.String()))
		if run.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, fmt.Sprint(run.Failures))
		}
		span.End()
	}
}

// StartStageSpan starts a span for one stage.
func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, stage *model.StageExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "stage "+stage.StageName, trace.WithAttributes(
		attribute.String("capture.stage_execution_id", stage.ID),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("capture.status", stage.Status.String()),
			attribute.String("capture.exit_status", stage.ExitStatus.String()),
			attribute.Int("capture.warnings", len(stage.Warnings)),
		)
		if stage.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, fmt.Sprint(stage.Failures))
		}
		span.End()
	}
}

// StartEngineSpan starts a span around one engine call.
func (t *OpenTelemetryTracer) StartEngineSpan(ctx context.Context, operation string) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, "engine "+operation, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(
		attribute.String("capture.module", module),
		attribute.String("capture.error_kind", exception.KindOf(err).String()),
	))
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		case []string:
			out = append(out, attribute.StringSlice(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
