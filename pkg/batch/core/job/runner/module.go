package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
)

// SimpleJobRunnerParams defines dependencies for SimpleJobRunner.
type SimpleJobRunnerParams struct {
	fx.In
	Repository   repository.RunRepository
	RunListeners []port.RunListener `group:"runListeners"`
	Tracer       metrics.Tracer
}

// NewJobRunner provides the concrete JobRunner implementation (SimpleJobRunner).
func NewJobRunner(p SimpleJobRunnerParams) port.JobRunner {
	return NewSimpleJobRunner(p.Repository, p.RunListeners, p.Tracer)
}

// Module provides the JobRunner implementation.
var Module = fx.Options(
	fx.Provide(NewJobRunner),
)
