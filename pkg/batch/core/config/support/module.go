package support

import (
	"go.uber.org/fx"
)

// Module defines Fx options related to JobFactory.
// Tasklet builders are registered by the application with fx.Invoke.
var Module = fx.Options(
	fx.Provide(NewJobFactory),
)
