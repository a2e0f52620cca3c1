package pipeline

import (
	"context"
	"strings"

	"github.com/tigerroll/capture/internal/badants"
	"github.com/tigerroll/capture/internal/calibration"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	"github.com/tigerroll/capture/internal/flagging"
	"github.com/tigerroll/capture/internal/report"
	"github.com/tigerroll/capture/internal/selfcal"
	"github.com/tigerroll/capture/internal/split"
	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// importTasklet makes the multi-source dataset available: it imports the raw FITS file when
// from_fits is set, otherwise the dataset must already exist.
type importTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildImport(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &importTasklet{s: s, cfg: cfg}, nil
}

func (t *importTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	in := t.cfg.Capture.Inputs
	if !t.cfg.Capture.Stages.FromFITS {
		if err := engine.Require(ctx, t.s.eng, module, in.MSFile); err != nil {
			return model.ExitStatusFailed, err
		}
		logger.Infof("Using existing multi-source dataset %s.", in.MSFile)
		return model.ExitStatusCompleted, nil
	}
	exists, err := t.s.eng.Exists(ctx, in.MSFile)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if exists {
		logger.Infof("%s already exists, import of %s skipped.", in.MSFile, in.FITSFile)
		return model.ExitStatusNoOp, nil
	}
	logger.Infof("Importing %s into %s.", in.FITSFile, in.MSFile)
	if err := t.s.eng.Import(ctx, in.FITSFile, in.MSFile); err != nil {
		return model.ExitStatusFailed, err
	}
	stage.ExecutionContext.Put("imported", in.FITSFile)
	return model.ExitStatusCompleted, nil
}

// badAntennaTasklet finds antennas with low calibrator amplitudes and flags them when
// flag_bad_ants is set.
type badAntennaTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildBadAntennas(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &badAntennaTasklet{s: s, cfg: cfg}, nil
}

func (t *badAntennaTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	ms := t.cfg.Capture.Inputs.MSFile
	obs, err := t.s.observe(ctx, ms)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if len(obs.roles.Calibrators()) == 0 {
		return model.ExitStatusNoOp, exception.NewEmptyRoleSetWarning(module, "calibrator", "bad antenna search")
	}
	res, err := badants.NewDetector(t.s.eng).Find(ctx, obs.md, obs.roles, obs.plan)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	t.s.report.AddBadAntennas(res)
	bad := res.BadAntennas()
	run.ExecutionContext.Put(KeyBadAntennas, strings.Join(bad, ","))
	stage.ExecutionContext.Put("commands", len(res.Commands))

	if !t.cfg.Capture.Stages.FlagBadAnts {
		logger.Infof("Found %d bad antennas on %s; flagging is disabled.", len(bad), ms)
		return model.ExitStatusCompleted, nil
	}
	if err := badants.Apply(ctx, t.s.eng, ms, res.Commands); err != nil {
		return model.ExitStatusFailed, err
	}
	return model.ExitStatusCompleted, nil
}

// badChannelTasklet finds channels inside persistent RFI bands and flags them when
// flag_bad_freq is set.
type badChannelTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildBadChannels(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &badChannelTasklet{s: s, cfg: cfg}, nil
}

func (t *badChannelTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	ms := t.cfg.Capture.Inputs.MSFile
	if err := engine.Require(ctx, t.s.eng, module, ms); err != nil {
		return model.ExitStatusFailed, err
	}
	md, err := t.s.eng.Metadata(ctx, ms)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	cmds := badants.FindBadChannels(md)
	stage.ExecutionContext.Put("commands", len(cmds))
	if !t.cfg.Capture.Stages.FlagBadFreq {
		return model.ExitStatusCompleted, nil
	}
	if err := badants.Apply(ctx, t.s.eng, ms, cmds); err != nil {
		return model.ExitStatusFailed, err
	}
	return model.ExitStatusCompleted, nil
}

// FlaggingProperties are the job definition properties of a flagging stage.
type FlaggingProperties struct {
	Phase string `yaml:"phase"`
	Input string `yaml:"input"`
}

// flaggingTasklet runs one phase of the flagging policy on one stage input.
type flaggingTasklet struct {
	s     *Stages
	cfg   *config.Config
	phase flagging.Phase
	input string
}

func (s *Stages) buildFlagging(cfg *config.Config, properties map[string]interface{}) (port.Tasklet, error) {
	props := FlaggingProperties{Input: InputMS}
	if err := configbinder.BindProperties(properties, &props); err != nil {
		return nil, exception.NewBatchError(module, "failed to bind flagging properties", err, exception.KindConfiguration)
	}
	phase := flagging.Phase(props.Phase)
	known := false
	for _, p := range flagging.Phases {
		if p == phase {
			known = true
		}
	}
	if !known || phase == flagging.PhaseResidual {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "flagging phase %q cannot run as a stage", props.Phase)
	}
	switch props.Input {
	case InputMS, InputSplit, InputAverage:
	default:
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "unknown flagging input %q", props.Input)
	}
	if (phase == flagging.PhaseInitial || phase == flagging.PhasePostCalibration) && props.Input != InputMS {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "%s flagging runs on the multi-source dataset", phase)
	}
	return &flaggingTasklet{s: s, cfg: cfg, phase: phase, input: props.Input}, nil
}

func (t *flaggingTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	dataset, err := t.s.dataset(ctx, t.cfg, run, t.input)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	var in flagging.Input
	if t.input == InputMS {
		obs, err := t.s.observe(ctx, dataset)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		in = flagging.Input{Metadata: obs.md, Roles: obs.roles, Plan: &obs.plan}
	} else {
		if err := engine.Require(ctx, t.s.eng, module, dataset); err != nil {
			return model.ExitStatusFailed, err
		}
		md, err := t.s.eng.Metadata(ctx, dataset)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		in = flagging.Input{Metadata: md, Roles: fields.Roles{Targets: md.Fields}}
	}

	flagger := flagging.NewFlagger(t.s.eng, t.s.recorder, t.cfg.Capture.Flagging, t.cfg.Capture.Stages.Target)
	counts, err := flagger.Run(ctx, t.phase, in)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	t.s.report.AddFlags(string(t.phase), dataset, counts)
	if counts != nil {
		stage.ExecutionContext.Put("flagged_fraction", counts.Total().Fraction())
	}
	return model.ExitStatusCompleted, nil
}

// CalibrationProperties are the job definition properties of a calibration stage.
type CalibrationProperties struct {
	Suffix string `yaml:"suffix"`
}

// calibrationTasklet runs one calibration pass on the multi-source dataset.
type calibrationTasklet struct {
	s      *Stages
	cfg    *config.Config
	suffix string
}

func (s *Stages) buildCalibration(cfg *config.Config, properties map[string]interface{}) (port.Tasklet, error) {
	var props CalibrationProperties
	if err := configbinder.BindProperties(properties, &props); err != nil {
		return nil, exception.NewBatchError(module, "failed to bind calibration properties", err, exception.KindConfiguration)
	}
	return &calibrationTasklet{s: s, cfg: cfg, suffix: props.Suffix}, nil
}

func (t *calibrationTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	ms := t.cfg.Capture.Inputs.MSFile
	obs, err := t.s.observe(ctx, ms)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	res, err := calibration.NewStage(t.s.eng, t.cfg.Capture.Calibration, t.cfg.Capture.Stages.Target).
		Run(ctx, ms, obs.roles, obs.plan, t.suffix)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	stage.ExecutionContext.Put("applied", strings.Join(res.Applied, ","))
	stage.ExecutionContext.Put("flux_reference", res.FluxReference)
	return model.ExitStatusCompleted, nil
}

// splitTasklet splits every target of the multi-source dataset into its own dataset.
type splitTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildSplit(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &splitTasklet{s: s, cfg: cfg}, nil
}

func (t *splitTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	ms := t.cfg.Capture.Inputs.MSFile
	obs, err := t.s.observe(ctx, ms)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if len(obs.roles.Targets) == 0 {
		return model.ExitStatusNoOp, exception.NewEmptyRoleSetWarning(module, "target", "split")
	}
	splits, err := split.NewSplitter(t.s.eng).Targets(ctx, ms, obs.roles.Targets, obs.plan)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	downstream := split.Downstream(t.cfg.Capture.Inputs.SplitFile, splits)
	run.ExecutionContext.Put(KeySplitFiles, strings.Join(splits, ","))
	run.ExecutionContext.Put(KeySplitFile, downstream)
	logger.Event("split", "dataset", ms, "splits", splits, "downstream", downstream)
	return model.ExitStatusCompleted, nil
}

// averageTasklet averages the target split in frequency.
type averageTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildAverage(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &averageTasklet{s: s, cfg: cfg}, nil
}

func (t *averageTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	sf, err := t.s.splitFile(ctx, t.cfg, run)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	avg, err := split.NewSplitter(t.s.eng).Average(ctx, sf, t.cfg.Capture.SelfCal.ChanAvg)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	run.ExecutionContext.Put(KeyAvgFile, avg)
	return model.ExitStatusCompleted, nil
}

// dirtyImageTasklet images the averaged split without deconvolution.
type dirtyImageTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildDirtyImage(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	return &dirtyImageTasklet{s: s, cfg: cfg}, nil
}

func (t *dirtyImageTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	avg, err := t.s.avgFile(ctx, t.cfg, run)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if err := engine.Require(ctx, t.s.eng, module, avg); err != nil {
		return model.ExitStatusFailed, err
	}
	md, err := t.s.eng.Metadata(ctx, avg)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if len(md.Fields) == 0 {
		return model.ExitStatusNoOp, exception.NewEmptyRoleSetWarning(module, "target", "dirty image")
	}
	img, fits, err := selfcal.NewImager(t.s.eng, t.cfg.Capture.Imaging).Make(ctx, avg, md.Fields[0], 0, 0, "")
	if err != nil {
		return model.ExitStatusFailed, err
	}
	t.s.report.AddFITS(fits)
	stage.ExecutionContext.Put("image", img.Name)
	logger.Event("dirty image", "dataset", avg, "field", md.Fields[0], "image", img.Name, "fits", fits)
	return model.ExitStatusCompleted, nil
}

// selfCalTasklet runs the self-calibration loop on the averaged split, in sub-bands when
// do_subband_selfcal is set.
type selfCalTasklet struct {
	s   *Stages
	cfg *config.Config
}

func (s *Stages) buildSelfCal(cfg *config.Config, _ map[string]interface{}) (port.Tasklet, error) {
	if _, err := selfcal.PlanSchedule(cfg.Capture.SelfCal); err != nil {
		return nil, err
	}
	return &selfCalTasklet{s: s, cfg: cfg}, nil
}

func (t *selfCalTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	avg, err := t.s.avgFile(ctx, t.cfg, run)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	c := t.cfg.Capture
	flagger := flagging.NewFlagger(t.s.eng, t.s.recorder, c.Flagging, c.Stages.Target)
	loop := selfcal.NewLoop(t.s.eng, flagger, selfcal.NewImager(t.s.eng, c.Imaging), c.SelfCal, c.Calibration, t.s.recorder)
	res, err := loop.Run(ctx, avg, c.Stages.DoSubbandSelfCal)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	t.s.report.AddSelfCal(res)
	final := res.Final()
	run.ExecutionContext.Put(KeyFinalImage, final.Image.Name)
	stage.ExecutionContext.Put("final_dataset", final.Dataset)
	stage.ExecutionContext.Put("windows", len(res.Windows))
	return model.ExitStatusCompleted, nil
}

// PublishProperties are the job definition properties of the publication stage.
type PublishProperties struct {
	Compression string `yaml:"compression"`
}

// publishTasklet uploads the run report and the exported images to the object store.
type publishTasklet struct {
	s         *Stages
	publisher *report.Publisher
}

func (s *Stages) buildPublish(cfg *config.Config, properties map[string]interface{}) (port.Tasklet, error) {
	props := PublishProperties{Compression: "SNAPPY"}
	if err := configbinder.BindProperties(properties, &props); err != nil {
		return nil, exception.NewBatchError(module, "failed to bind publish properties", err, exception.KindConfiguration)
	}
	if s.store == nil {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "publication needs a storage adapter")
	}
	return &publishTasklet{
		s:         s,
		publisher: report.NewPublisher(s.store, cfg.Capture.Engine.Casa.WorkDir, props.Compression),
	}, nil
}

func (t *publishTasklet) Execute(ctx context.Context, run *model.PipelineRun, stage *model.StageExecution) (model.ExitStatus, error) {
	published, err := t.publisher.Publish(ctx, run.ID, t.s.report)
	run.ExecutionContext.Put(KeyPublished, len(published))
	stage.ExecutionContext.Put("objects", strings.Join(published, ","))
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(module, "publication failed", err, exception.KindPersistence)
	}
	return model.ExitStatusCompleted, nil
}
