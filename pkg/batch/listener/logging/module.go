package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
)

// Module registers the LoggingListener for runs and stages.
var Module = fx.Options(
	fx.Provide(NewLoggingListener),
	fx.Provide(
		fx.Annotate(func(l *LoggingListener) port.RunListener { return l }, fx.ResultTags(`group:"runListeners"`)),
		fx.Annotate(func(l *LoggingListener) port.StageListener { return l }, fx.ResultTags(`group:"stageListeners"`)),
	),
)
