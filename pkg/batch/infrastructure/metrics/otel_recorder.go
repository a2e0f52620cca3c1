package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder records pipeline metrics through the OpenTelemetry metrics API.
type OpenTelemetryRecorder struct {
	runs           metric.Int64Counter
	runDuration    metric.Float64Histogram
	stages         metric.Int64Counter
	stageDuration  metric.Float64Histogram
	flagFraction   metric.Float64Histogram
	selfCalIters   metric.Int64Counter
	engineCalls    metric.Int64Counter
	engineDuration metric.Float64Histogram
	opDuration     metric.Float64Histogram
	flush          func(ctx context.Context) error
}

// NewOpenTelemetryRecorder creates the instruments on mp. flush is called by Flush and may be nil.
func NewOpenTelemetryRecorder(mp metric.MeterProvider, flush func(ctx context.Context) error) (*OpenTelemetryRecorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{flush: flush}
	var err error

	if r.runs, err = meter.Int64Counter("capture.runs", metric.WithDescription("Pipeline runs by final status.")); err != nil {
		return nil, err
	}
	if r.runDuration, err = meter.Float64Histogram("capture.run.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stages, err = meter.Int64Counter("capture.stages", metric.WithDescription("Stage executions by final status.")); err != nil {
		return nil, err
	}
	if r.stageDuration, err = meter.Float64Histogram("capture.stage.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.flagFraction, err = meter.Float64Histogram("capture.flag.fraction", metric.WithDescription("Flagged fraction per field and phase.")); err != nil {
		return nil, err
	}
	if r.selfCalIters, err = meter.Int64Counter("capture.selfcal.iterations"); err != nil {
		return nil, err
	}
	if r.engineCalls, err = meter.Int64Counter("capture.engine.calls"); err != nil {
		return nil, err
	}
	if r.engineDuration, err = meter.Float64Histogram("capture.engine.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.opDuration, err = meter.Float64Histogram("capture.operation.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {}

func (r *OpenTelemetryRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", run.JobName),
		attribute.String("status", run.Status.String()),
	)
	r.runs.Add(ctx, 1, attrs)
	if run.EndTime != nil {
		r.runDuration.Record(ctx, run.EndTime.Sub(run.StartTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordStageStart(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
}

func (r *OpenTelemetryRecorder) RecordStageEnd(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	attrs := metric.WithAttributes(
		attribute.String("stage", stage.StageName),
		attribute.String("status", stage.Status.String()),
		attribute.String("exit_status", stage.ExitStatus.String()),
	)
	r.stages.Add(ctx, 1, attrs)
	r.stageDuration.Record(ctx, stage.Duration().Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordFlagFraction(ctx context.Context, phase, field string, fraction float64) {
	r.flagFraction.Record(ctx, fraction, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("field", field),
	))
}

func (r *OpenTelemetryRecorder) RecordSelfCalIteration(ctx context.Context, field string, iteration, niter int, mode string) {
	r.selfCalIters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("mode", mode),
		attribute.Int("iteration", iteration),
	))
}

func (r *OpenTelemetryRecorder) RecordEngineCall(ctx context.Context, operation string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation), attribute.String("outcome", outcome))
	r.engineCalls.Add(ctx, 1, attrs)
	r.engineDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("name", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.opDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Flush forces buffered measurements out to the exporter.
func (r *OpenTelemetryRecorder) Flush(ctx context.Context) error {
	if r.flush == nil {
		return nil
	}
	return r.flush(ctx)
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
