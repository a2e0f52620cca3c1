package metrics

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
)

// Module registers the MetricsListener for runs and stages.
var Module = fx.Options(
	fx.Provide(NewMetricsListener),
	fx.Provide(
		fx.Annotate(func(l *MetricsListener) port.RunListener { return l }, fx.ResultTags(`group:"runListeners"`)),
		fx.Annotate(func(l *MetricsListener) port.StageListener { return l }, fx.ResultTags(`group:"stageListeners"`)),
	),
)
