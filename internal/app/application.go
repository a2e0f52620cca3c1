// Package app composes the pipeline from its fx modules and runs the reduction job once.
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	engineprovider "github.com/tigerroll/capture/internal/engine/provider"
	"github.com/tigerroll/capture/internal/pipeline"
	gormdb "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm"
	storageprovider "github.com/tigerroll/capture/pkg/batch/adapter/storage/provider"
	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/core/config/bootstrap"
	"github.com/tigerroll/capture/pkg/batch/core/config/jsl"
	support "github.com/tigerroll/capture/pkg/batch/core/config/support"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	jobRunner "github.com/tigerroll/capture/pkg/batch/core/job/runner"
	inframetrics "github.com/tigerroll/capture/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/capture/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/capture/pkg/batch/infrastructure/repository/sql"
	batchlistener "github.com/tigerroll/capture/pkg/batch/listener"
	"github.com/tigerroll/capture/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Outcome receives the finished run of the job.
type Outcome struct {
	Run *model.PipelineRun
	Err error
}

// repositoryModule selects the run ledger: SQL through GORM, or in memory.
func repositoryModule(cfg *config.Config) fx.Option {
	if cfg.Capture.Database.IsSQL() {
		logger.Debugf("Run ledger: %s database.", cfg.Capture.Database.Type)
		return fx.Options(gormdb.Module, sql.Module)
	}
	logger.Debugf("Run ledger: in memory.")
	return inmemory.Module
}

// Modules returns the fx options of the pipeline for cfg, without the job start.
func Modules(cfg *config.Config) fx.Option {
	return fx.Options(
		logger.Module,
		config.Module,
		inframetrics.Module,
		bootstrap.Module,
		support.Module,
		repositoryModule(cfg),
		batchlistener.Module,
		jobRunner.Module,
		storageprovider.Module,
		engineprovider.Module,
		pipeline.Module,
	)
}

// Overrides are command line settings applied over the loaded configuration.
type Overrides struct {
	// MSFile replaces inputs.ms_file when set.
	MSFile string
	// Stages maps stage flag keys to "true" or "false".
	Stages map[string]string
}

// Apply writes o into cfg and validates the result.
func (o Overrides) Apply(cfg *config.Config) error {
	if o.MSFile != "" {
		cfg.Capture.Inputs.MSFile = o.MSFile
	}
	for key := range o.Stages {
		if !config.IsStageFlag(key) {
			return exception.NewUnsupportedConfigurationError("app", "unknown stage flag %q", key)
		}
	}
	if err := configbinder.BindStringProperties(o.Stages, &cfg.Capture.Stages); err != nil {
		return exception.NewBatchError("app", "invalid stage override", err, exception.KindConfiguration)
	}
	cfg.Capture.Stages.Normalize()
	return cfg.Validate()
}

// RunApplication loads the configuration, composes the pipeline with uber-fx and runs the job
// once. The returned run is nil when the application could not start.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, embeddedJSL jsl.JSLDefinitionBytes, overrides Overrides) (*model.PipelineRun, error) {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		return nil, err
	}
	if err := overrides.Apply(cfg); err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Capture.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Capture.System.Logging.Level)

	outcome := &Outcome{}
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			embeddedJSL,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
			outcome,
		),
		Modules(cfg),
		fx.Decorate(func(c *config.Config) (*config.Config, error) {
			return c, overrides.Apply(c)
		}),
		fx.Invoke(startJobExecution),
	)
	if err := app.Err(); err != nil {
		return nil, exception.NewBatchError("app", "failed to compose the pipeline", err, exception.KindConfiguration)
	}

	startCtx, cancel := context.WithTimeout(appCtx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		if _, ok := exception.AsBatchError(err); ok {
			return nil, err
		}
		return nil, exception.NewBatchError("app", "failed to start the pipeline", err, exception.KindInternal)
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(appCtx), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop reported: %v", err)
	}
	return outcome.Run, outcome.Err
}

type jobExecutionParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Runner     port.JobRunner
	Factory    *support.JobFactory
	Definition *jsl.Job
	Config     *config.Config
	AppCtx     context.Context `name:"appCtx"`
	Outcome    *Outcome
}

// startJobExecution is invoked by Fx to run the job once the application has started.
func startJobExecution(p jobExecutionParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: onStartJobExecution(p),
		OnStop:  onStopApplication(),
	})
}

// onStartJobExecution builds the job and runs it in the background, then requests shutdown.
func onStartJobExecution(p jobExecutionParams) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		job, err := p.Factory.CreateJob(p.Definition)
		if err != nil {
			return err
		}
		go func() {
			exitCode := 0
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Panic recovered in job execution: %v", r)
					p.Outcome.Err = exception.NewBatchError("app", fmt.Sprintf("panic: %v", r), nil, exception.KindInternal)
					exitCode = 1
				}
				logger.Infof("Requesting application shutdown after job completion.")
				if err := p.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Errorf("Failed to shutdown application: %v", err)
				}
			}()

			dataset := p.Config.Capture.Inputs.MSFile
			logger.Infof("Starting job '%s' (%d stages, config %s).", job.JobName(), len(job.Steps()), p.Config.Fingerprint())
			run, err := p.Runner.Run(p.AppCtx, job, dataset, p.Config.Fingerprint())
			p.Outcome.Run, p.Outcome.Err = run, err
			if err != nil {
				logger.Errorf("Job '%s' failed: %v", job.JobName(), err)
				exitCode = 1
			}
		}()
		return nil
	}
}

// onStopApplication logs application shutdown.
func onStopApplication() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Infof("Application is shutting down.")
		return nil
	}
}
