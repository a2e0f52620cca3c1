package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func finishedRun(t *testing.T) (*model.PipelineRun, *model.StageExecution) {
	t.Helper()
	run := model.NewPipelineRun("capture", "obs.lta", "abc")
	run.MarkAsStarted()
	stage := model.NewStageExecution(run, "initialCalibration")
	stage.MarkAsStarted()
	stage.MarkAsCompleted(model.ExitStatusCompleted)
	run.MarkAsCompleted()
	return run, stage
}

func TestPrometheusRecorder_FlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.prom")
	r := NewPrometheusRecorder(path)
	ctx := context.Background()
	run, stage := finishedRun(t)

	r.RecordRunStart(ctx, run)
	r.RecordStageEnd(ctx, run, stage)
	r.RecordFlagFraction(ctx, "initial", "3C286", 0.125)
	r.RecordSelfCalIteration(ctx, "TARGET", 1, 200, "ap")
	r.RecordEngineCall(ctx, "flag", time.Second, nil)
	r.RecordEngineCall(ctx, "image", time.Second, errors.New("boom"))
	r.RecordRunEnd(ctx, run)

	assert.Equal(t, 0.125, testutil.ToFloat64(r.flagFraction.WithLabelValues("initial", "3C286")))
	assert.Equal(t, 200.0, testutil.ToFloat64(r.selfCalNiter.WithLabelValues("TARGET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.engineCallsTotal.WithLabelValues("image", "error")))

	require.NoError(t, r.Flush(ctx))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "capture_flag_fraction"))
	assert.True(t, strings.Contains(text, "capture_stage_duration_seconds"))
}

func TestPrometheusRecorder_FlushWithoutTextfile(t *testing.T) {
	r := NewPrometheusRecorder("")
	assert.NoError(t, r.Flush(context.Background()))
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)
	run, stage := finishedRun(t)

	ctx, endRun := tracer.StartRunSpan(context.Background(), run)
	ctx, endStage := tracer.StartStageSpan(ctx, stage)
	_, endEngine := tracer.StartEngineSpan(ctx, "gaincal")
	endEngine(errors.New("solver failed"))
	tracer.RecordEvent(ctx, "selfcal.iteration", map[string]interface{}{"iteration": 1, "mode": "p"})
	endStage()
	endRun()

	ended := sr.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "engine gaincal", ended[0].Name())
	assert.Equal(t, "stage initialCalibration", ended[1].Name())
	assert.Equal(t, "run capture", ended[2].Name())
	assert.Equal(t, ended[2].SpanContext().TraceID(), ended[0].SpanContext().TraceID())
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "selfcal.iteration", ended[1].Events()[0].Name)
}

func TestOpenTelemetryRecorder_Collects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOpenTelemetryRecorder(mp, nil)
	require.NoError(t, err)
	ctx := context.Background()
	run, stage := finishedRun(t)

	r.RecordStageEnd(ctx, run, stage)
	r.RecordEngineCall(ctx, "applycal", 2*time.Second, nil)
	r.RecordRunEnd(ctx, run)
	require.NoError(t, r.Flush(ctx))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["capture.stages"])
	assert.True(t, names["capture.engine.calls"])
	assert.True(t, names["capture.runs"])
}

func TestNewBackend_Selection(t *testing.T) {
	ctx := context.Background()

	b, err := NewBackend(ctx, config.MetricsConfig{Backend: "none"})
	require.NoError(t, err)
	assert.NoError(t, b.Recorder.Flush(ctx))

	b, err = NewBackend(ctx, config.MetricsConfig{Backend: "prometheus"})
	require.NoError(t, err)
	assert.IsType(t, &PrometheusRecorder{}, b.Recorder)

	_, err = NewBackend(ctx, config.MetricsConfig{Backend: "statsd"})
	require.Error(t, err)
	assert.Equal(t, exception.KindUnsupportedConfiguration, exception.KindOf(err))

	_, err = NewBackend(ctx, config.MetricsConfig{Backend: "otel", OTLPProtocol: "smoke"})
	require.Error(t, err)
}
