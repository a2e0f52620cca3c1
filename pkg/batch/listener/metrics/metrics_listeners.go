package metrics

import (
	"context"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// MetricsListener forwards run and stage boundaries to a MetricRecorder and flushes it
// when the run ends.
type MetricsListener struct {
	recorder metrics.MetricRecorder
}

func NewMetricsListener(recorder metrics.MetricRecorder) *MetricsListener {
	return &MetricsListener{recorder: recorder}
}

func (l *MetricsListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {
	l.recorder.RecordRunStart(ctx, run)
}

func (l *MetricsListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	l.recorder.RecordRunEnd(ctx, run)
	if err := l.recorder.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Warnf("MetricsListener: failed to flush metrics for run %s: %v", run.ID, err)
	}
}

func (l *MetricsListener) BeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	l.recorder.RecordStageStart(ctx, run, stage)
}

func (l *MetricsListener) AfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	l.recorder.RecordStageEnd(ctx, run, stage)
}

var (
	_ port.RunListener   = (*MetricsListener)(nil)
	_ port.StageListener = (*MetricsListener)(nil)
)
