package logging

import (
	"context"

	"github.com/dustin/go-humanize"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// LoggingListener writes one structured line at each run and stage boundary.
type LoggingListener struct{}

func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

func (l *LoggingListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {
	logger.Event("run started",
		"run_id", run.ID,
		"job", run.JobName,
		"dataset", run.Dataset,
		"config_fingerprint", run.ConfigFingerprint,
	)
}

func (l *LoggingListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	var executed, skipped, warnings int
	for _, se := range run.StageExecutions {
		if se.Status == model.BatchStatusSkipped {
			skipped++
		} else {
			executed++
		}
		warnings += len(se.Warnings)
	}
	attrs := []any{
		"run_id", run.ID,
		"status", run.Status.String(),
		"exit_status", run.ExitStatus.String(),
		"stages_executed", executed,
		"stages_skipped", skipped,
		"warnings", warnings,
	}
	if run.EndTime != nil {
		attrs = append(attrs, "duration", run.EndTime.Sub(run.StartTime).Round(1e6).String())
	}
	if len(run.Failures) > 0 {
		attrs = append(attrs, "failures", []string(run.Failures))
		logger.Warn("run finished", attrs...)
		return
	}
	logger.Event("run finished", attrs...)
}

func (l *LoggingListener) BeforeStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	logger.Debugf("Stage '%s' (ID: %s) starting at %s.", stage.StageName, stage.ID, humanize.Time(stage.StartTime))
}

func (l *LoggingListener) AfterStage(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) {
	if stage.Status == model.BatchStatusSkipped {
		logger.Debugf("Stage '%s' skipped.", stage.StageName)
		return
	}
	logger.Event("stage finished",
		"stage", stage.StageName,
		"status", stage.Status.String(),
		"exit_status", stage.ExitStatus.String(),
		"duration", stage.Duration().Round(1e6).String(),
		"warnings", len(stage.Warnings),
	)
}

var (
	_ port.RunListener   = (*LoggingListener)(nil)
	_ port.StageListener = (*LoggingListener)(nil)
)
