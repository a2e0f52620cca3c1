package notification

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
)

// Module provides notification-related components.
var Module = fx.Options(
	// 1. Provides a concrete implementation of Notifier.
	fx.Provide(fx.Annotate(
		NewLogNotifier,
		fx.As(new(Notifier)),
	)),

	// 2. Registers the listener with the runner.
	fx.Provide(fx.Annotate(
		NewNotificationListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)),
)
