package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts the logging section so components can depend on it alone.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Capture.System.Logging
}

// NewStagesConfigProvider extracts the stage-enable flags.
func NewStagesConfigProvider(cfg *Config) *StagesConfig {
	return &cfg.Capture.Stages
}

// Module loads *Config from the supplied EmbeddedConfig and exposes its sections.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewStagesConfigProvider),
)
