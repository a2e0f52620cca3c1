package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
)

// Module registers the TracingStageListener.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewTracingStageListener,
		fx.As(new(port.StageListener)),
		fx.ResultTags(`group:"stageListeners"`),
	)),
)
