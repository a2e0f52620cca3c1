// Package bootstrap applies configuration side effects and loads the job definition at startup.
package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/capture/pkg/batch/core/config"
	jsl "github.com/tigerroll/capture/pkg/batch/core/config/jsl"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// NewJobDefinition parses the embedded job definition.
func NewJobDefinition(jslBytes jsl.JSLDefinitionBytes) (*jsl.Job, error) {
	logger.Debugf("Loading job definition.")
	return jsl.LoadJobDefinition(jslBytes)
}

// ApplyLoggingConfigHook applies the logging level and the optional run-log file from the configuration.
// The run-log file is closed when the application stops.
func ApplyLoggingConfigHook(lc fx.Lifecycle, cfg *config.Config) error {
	logging := cfg.Capture.System.Logging
	if logging.File != "" {
		closeFn, err := logger.Setup(logging.File)
		if err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closeFn()
			},
		})
	}
	if logging.Level != "" {
		logger.SetLogLevel(logging.Level)
		logger.Debugf("Log level set to: %s", logging.Level)
	}
	return nil
}
