// Package support provides the JobFactory, which turns a job definition into an executable job
// by resolving each stage's tasklet from the registered builders.
package support

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/fx"

	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	jsl "github.com/tigerroll/capture/pkg/batch/core/config/jsl"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	"github.com/tigerroll/capture/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	tasklet "github.com/tigerroll/capture/pkg/batch/engine/step/tasklet"
	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// TaskletBuilder creates the Tasklet of a stage from the configuration and the stage properties.
type TaskletBuilder func(cfg *config.Config, properties map[string]interface{}) (port.Tasklet, error)

// JobFactory is a central factory for constructing jobs from job definitions.
// It manages registered tasklet builders and the dependencies every stage shares.
type JobFactory struct {
	config          *config.Config
	repo            repository.RunRepository
	stageListeners  []port.StageListener
	tracer          metrics.Tracer
	mu              sync.RWMutex
	taskletBuilders map[string]TaskletBuilder
}

// JobFactoryParams defines the parameters that the NewJobFactory function
// receives via dependency injection (Fx).
type JobFactoryParams struct {
	fx.In
	Cfg            *config.Config
	Repo           repository.RunRepository
	StageListeners []port.StageListener `group:"stageListeners"`
	Tracer         metrics.Tracer
}

// NewJobFactory creates a new instance of JobFactory.
func NewJobFactory(p JobFactoryParams) *JobFactory {
	return &JobFactory{
		config:          p.Cfg,
		repo:            p.Repo,
		stageListeners:  p.StageListeners,
		tracer:          p.Tracer,
		taskletBuilders: make(map[string]TaskletBuilder),
	}
}

// GetConfig returns the configuration the factory builds against.
func (f *JobFactory) GetConfig() *config.Config {
	return f.config
}

// RegisterTaskletBuilder registers a tasklet builder function with the given name.
// Registering the same name twice replaces the earlier builder.
func (f *JobFactory) RegisterTaskletBuilder(name string, builder TaskletBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.taskletBuilders[name]; exists {
		logger.Warnf("JobFactory: tasklet builder '%s' registered twice; the later one wins.", name)
	}
	f.taskletBuilders[name] = builder
}

// RegisteredTasklets returns the registered builder names in sorted order.
func (f *JobFactory) RegisteredTasklets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.taskletBuilders))
	for name := range f.taskletBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateJob builds an executable job from def. Every stage is resolved and every enabled
// stage's tasklet is built before anything runs, so configuration errors surface up front.
// Disabled stages keep their place in the job and are recorded as SKIPPED.
func (f *JobFactory) CreateJob(def *jsl.Job) (port.Job, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	steps := make([]port.Step, 0, len(def.Stages))
	for _, st := range def.Stages {
		builder, ok := f.taskletBuilders[st.Tasklet.Ref]
		if !ok {
			return nil, exception.NewBatchErrorf("job_factory", exception.KindConfiguration,
				"stage '%s' references unknown tasklet '%s'", st.ID, st.Tasklet.Ref)
		}

		enabled := st.IsEnabled(f.config.Capture.Stages)
		var t port.Tasklet
		if enabled {
			built, err := builder(f.config, st.Tasklet.Properties)
			if err != nil {
				if exception.IsBatchError(err) {
					return nil, err
				}
				return nil, exception.NewBatchError("job_factory", fmt.Sprintf("failed to build tasklet for stage '%s'", st.ID), err, exception.KindConfiguration)
			}
			t = built
		}
		steps = append(steps, tasklet.NewTaskletStep(st.ID, enabled, t, f.repo, f.stageListeners, f.tracer))
	}

	logger.Debugf("JobFactory: created job '%s' with %d stages.", def.Name, len(steps))
	return runner.NewSequentialJob(def.Name, steps), nil
}
