package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// The pipeline is a batch process, so nothing is scraped: Flush writes the registry to a
// node_exporter textfile.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	textfile string

	// Run Metrics
	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec

	// Stage Metrics
	stageDurationSeconds *prometheus.HistogramVec
	stageStatusCounter   *prometheus.CounterVec

	// Domain Metrics
	flagFraction       *prometheus.GaugeVec
	selfCalIterations  *prometheus.CounterVec
	selfCalNiter       *prometheus.GaugeVec
	engineCallsTotal   *prometheus.CounterVec
	engineCallDuration *prometheus.HistogramVec
	operationDuration  *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder writing to textfile on Flush.
func NewPrometheusRecorder(textfile string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engineBuckets := prometheus.ExponentialBuckets(0.5, 2, 14) // 0.5s .. ~68min

	r := &PrometheusRecorder{
		registry: registry,
		textfile: textfile,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: engineBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_run_status_total",
			Help: "Total number of pipeline runs by status.",
		}, []string{"job_name", "status"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: engineBuckets,
		}, []string{"job_name", "stage", "status", "exit_status"}),
		stageStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_stage_status_total",
			Help: "Total number of stage executions by status.",
		}, []string{"job_name", "stage", "status"}),
		flagFraction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capture_flag_fraction",
			Help: "Flagged fraction of each field after a flagging phase.",
		}, []string{"phase", "field"}),
		selfCalIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_selfcal_iterations_total",
			Help: "Completed self-calibration iterations by mode.",
		}, []string{"field", "mode"}),
		selfCalNiter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "capture_selfcal_niter",
			Help: "Deconvolution iterations of the latest self-calibration image.",
		}, []string{"field"}),
		engineCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_engine_calls_total",
			Help: "Calls into the processing engine by operation and outcome.",
		}, []string{"operation", "outcome"}),
		engineCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_engine_call_duration_seconds",
			Help:    "Duration of processing engine calls.",
			Buckets: engineBuckets,
		}, []string{"operation"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_operation_duration_seconds",
			Help:    "Duration of other named operations.",
			Buckets: engineBuckets,
		}, []string{"name"}),
	}

	registry.MustRegister(
		r.runDurationSeconds,
		r.runStatusCounter,
		r.stageDurationSeconds,
		r.stageStatusCounter,
		r.flagFraction,
		r.selfCalIterations,
		r.selfCalNiter,
		r.engineCallsTotal,
		r.engineCallDuration,
		r.operationDuration,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of a PipelineRun.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {
	r.runStatusCounter.WithLabelValues(run.JobName, run.Status.String()).Inc()
	logger.Debugf("Metrics: Run '%s' started.", run.ID)
}

// RecordRunEnd records the end of a PipelineRun.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	r.runStatusCounter.WithLabelValues(run.JobName, run.Status.String()).Inc()
	if run.EndTime == nil {
		return
	}
	duration := run.EndTime.Sub(run.StartTime).Seconds()
	r.runDurationSeconds.WithLabelValues(run.JobName, run.Status.String(), run.ExitStatus.String()).Observe(duration)
	logger.Debugf("Metrics: Run '%s' ended. Duration: %.3fs", run.ID, duration)
}

// RecordStageStart records the start of a stage.
func (r *PrometheusRecorder) RecordStageStart(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	r.stageStatusCounter.WithLabelValues(run.JobName, stage.StageName, stage.Status.String()).Inc()
}

// RecordStageEnd records the end of a stage.
func (r *PrometheusRecorder) RecordStageEnd(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	r.stageStatusCounter.WithLabelValues(run.JobName, stage.StageName, stage.Status.String()).Inc()
	if stage.EndTime == nil {
		return
	}
	r.stageDurationSeconds.WithLabelValues(
		run.JobName,
		stage.StageName,
		stage.Status.String(),
		stage.ExitStatus.String(),
	).Observe(stage.Duration().Seconds())
}

// RecordFlagFraction records the flagged fraction of a field.
func (r *PrometheusRecorder) RecordFlagFraction(ctx context.Context, phase, field string, fraction float64) {
	r.flagFraction.WithLabelValues(phase, field).Set(fraction)
}

// RecordSelfCalIteration records one completed self-calibration iteration.
func (r *PrometheusRecorder) RecordSelfCalIteration(ctx context.Context, field string, iteration, niter int, mode string) {
	r.selfCalIterations.WithLabelValues(field, mode).Inc()
	r.selfCalNiter.WithLabelValues(field).Set(float64(niter))
}

// RecordEngineCall records one engine call.
func (r *PrometheusRecorder) RecordEngineCall(ctx context.Context, operation string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.engineCallsTotal.WithLabelValues(operation, outcome).Inc()
	r.engineCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDuration records the execution time of a named operation. Tags are not used as labels
// to keep the label set fixed.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// Flush writes the registry to the configured textfile. Without a textfile it does nothing.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	if r.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		return err
	}
	logger.Infof("Metrics written to %s", r.textfile)
	return nil
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
