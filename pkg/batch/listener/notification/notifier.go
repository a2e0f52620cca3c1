package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Notifier is told about finished runs.
type Notifier interface {
	NotifyRunCompletion(ctx context.Context, run *model.PipelineRun)
}

// LogNotifier is a Notifier that writes a one-line summary to the log.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyRunCompletion logs the outcome of run.
func (n *LogNotifier) NotifyRunCompletion(ctx context.Context, run *model.PipelineRun) {
	duration := time.Duration(0)
	if run.EndTime != nil {
		duration = run.EndTime.Sub(run.StartTime)
	}

	message := fmt.Sprintf(
		"Run notification: '%s' on %s (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		run.JobName,
		run.Dataset,
		run.ID,
		run.Status,
		run.ExitStatus,
		duration.Round(time.Second),
		len(run.Failures),
	)

	if run.Status == model.BatchStatusCompleted {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
}

// NotificationListener adapts a Notifier to port.RunListener.
type NotificationListener struct {
	notifier Notifier
}

// NewNotificationListener creates a new instance of NotificationListener.
func NewNotificationListener(notifier Notifier) *NotificationListener {
	return &NotificationListener{notifier: notifier}
}

// BeforeRun exists to satisfy RunListener requirements but does nothing.
func (l *NotificationListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {}

// AfterRun forwards the finished run to the notifier.
func (l *NotificationListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	l.notifier.NotifyRunCompletion(ctx, run)
}

var (
	_ Notifier         = (*LogNotifier)(nil)
	_ port.RunListener = (*NotificationListener)(nil)
)
