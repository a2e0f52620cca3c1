package bootstrap

import (
	"go.uber.org/fx"
)

// Module provides bootstrap-related components to Fx.
var Module = fx.Options(
	fx.Provide(NewJobDefinition),      // Provides the parsed *jsl.Job.
	fx.Invoke(ApplyLoggingConfigHook), // Applies the logging configuration.
)
