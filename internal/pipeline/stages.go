// Package pipeline implements the stages of the reduction job as tasklets and registers their
// builders with the job factory. Stages share the engine, the run report and the run's
// execution context; everything else is derived from the datasets when a stage starts.
package pipeline

import (
	"go.uber.org/fx"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	"github.com/tigerroll/capture/internal/report"
	"github.com/tigerroll/capture/pkg/batch/adapter/storage"
	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	support "github.com/tigerroll/capture/pkg/batch/core/config/support"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "pipeline"

// Tasklet references used by the job definition.
const (
	RefImport      = "importTasklet"
	RefBadAntennas = "badAntennaTasklet"
	RefBadChannels = "badChannelTasklet"
	RefFlagging    = "flaggingTasklet"
	RefCalibration = "calibrationTasklet"
	RefSplit       = "splitTasklet"
	RefAverage     = "averageTasklet"
	RefDirtyImage  = "dirtyImageTasklet"
	RefSelfCal     = "selfCalTasklet"
	RefPublish     = "publishTasklet"
)

// Keys of the run execution context.
const (
	KeySplitFiles  = "split_files"
	KeySplitFile   = "split_file"
	KeyAvgFile     = "avg_file"
	KeyBadAntennas = "bad_antennas"
	KeyFinalImage  = "final_image"
	KeyPublished   = "published"
)

// Stages holds what the stage tasklets share.
type Stages struct {
	eng        engine.Engine
	recorder   metrics.MetricRecorder
	store      storage.ObjectStore
	report     *report.Report
	classifier *fields.Classifier
}

// Params defines the dependencies of NewStages.
type Params struct {
	fx.In
	Config   *config.Config
	Engine   engine.Engine
	Recorder metrics.MetricRecorder
	Store    storage.ObjectStore `optional:"true"`
	Report   *report.Report
}

// NewStages loads the calibrator catalog and creates the shared stage state.
func NewStages(p Params) (*Stages, error) {
	catalog, err := fields.LoadCatalog(p.Config.Capture.Inputs.CalibratorCatalog)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to load calibrator catalog", err, exception.KindConfiguration)
	}
	recorder := p.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Stages{
		eng:        p.Engine,
		recorder:   recorder,
		store:      p.Store,
		report:     p.Report,
		classifier: fields.NewClassifier(catalog),
	}, nil
}

// Report returns the report the stages fill.
func (s *Stages) Report() *report.Report {
	return s.report
}

// Builders returns the tasklet builder of every reference.
func (s *Stages) Builders() map[string]support.TaskletBuilder {
	return map[string]support.TaskletBuilder{
		RefImport:      s.buildImport,
		RefBadAntennas: s.buildBadAntennas,
		RefBadChannels: s.buildBadChannels,
		RefFlagging:    s.buildFlagging,
		RefCalibration: s.buildCalibration,
		RefSplit:       s.buildSplit,
		RefAverage:     s.buildAverage,
		RefDirtyImage:  s.buildDirtyImage,
		RefSelfCal:     s.buildSelfCal,
		RefPublish:     s.buildPublish,
	}
}

// Register registers every stage builder with the job factory.
func Register(f *support.JobFactory, s *Stages) {
	for ref, b := range s.Builders() {
		f.RegisterTaskletBuilder(ref, b)
	}
	logger.Debugf("Pipeline stages registered: %v", f.RegisteredTasklets())
}

// Module provides the run report and the stages, and registers the stage builders.
var Module = fx.Options(
	fx.Provide(report.New),
	fx.Provide(NewStages),
	fx.Invoke(Register),
)

var _ port.Tasklet = (*flaggingTasklet)(nil)
