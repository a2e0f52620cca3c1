// Package provider selects and constructs the configured processing engine.
package provider

import (
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/engine/casa"
	"github.com/tigerroll/capture/internal/engine/simulated"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const (
	TypeCASA      = "casa"
	TypeSimulated = "simulated"
)

// NewRawEngine creates the engine named by cfg.Engine.Type without tracking.
func NewRawEngine(cfg *config.Config) (engine.Engine, error) {
	ec := cfg.Capture.Engine
	switch strings.ToLower(ec.Type) {
	case "", TypeCASA:
		e, err := casa.New(ec.Casa)
		if err != nil {
			return nil, exception.NewBatchError("engine", "failed to create CASA engine", err, exception.KindConfiguration)
		}
		return e, nil
	case TypeSimulated:
		if ec.Simulated.Fixture == "" {
			logger.Infof("Simulated engine: no fixture configured, using the built-in sample observation for %s.", cfg.Capture.Inputs.MSFile)
			raw := ""
			if cfg.Capture.Stages.FromFITS {
				raw = cfg.Capture.Inputs.FITSFile
			}
			return simulated.New(simulated.SampleFixture(cfg.Capture.Inputs.MSFile, raw)), nil
		}
		fixture, err := simulated.LoadFixture(ec.Simulated.Fixture)
		if err != nil {
			return nil, exception.NewBatchError("engine", "failed to load simulated engine fixture", err, exception.KindConfiguration)
		}
		return simulated.New(fixture), nil
	default:
		return nil, exception.NewUnsupportedConfigurationError("engine", "unknown engine type %q", ec.Type)
	}
}

// Params are the dependencies of NewEngine.
type Params struct {
	fx.In
	Config   *config.Config
	Ledger   repository.RunRepository
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewEngine provides the configured engine wrapped with call tracking.
func NewEngine(p Params) (engine.Engine, error) {
	raw, err := NewRawEngine(p.Config)
	if err != nil {
		return nil, err
	}
	logger.Infof("Processing engine: %s.", strings.ToLower(p.Config.Capture.Engine.Type))
	return engine.NewTracked(raw, p.Ledger, p.Recorder, p.Tracer), nil
}

// Module is the Fx module for the processing engine.
var Module = fx.Options(
	fx.Provide(NewEngine),
)
