package pipeline

import (
	"context"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	"github.com/tigerroll/capture/internal/split"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Dataset inputs a stage can work on.
const (
	InputMS      = "ms"
	InputSplit   = "split"
	InputAverage = "avg"
)

// observation is what a stage derives from the multi-source dataset before it runs.
type observation struct {
	md    *engine.Metadata
	roles fields.Roles
	plan  channelplan.ChannelPlan
}

// inspect reads the metadata of dataset and classifies its fields.
func (s *Stages) inspect(ctx context.Context, dataset string) (*engine.Metadata, fields.Roles, error) {
	if err := engine.Require(ctx, s.eng, module, dataset); err != nil {
		return nil, fields.Roles{}, err
	}
	md, err := s.eng.Metadata(ctx, dataset)
	if err != nil {
		return nil, fields.Roles{}, err
	}
	return md, s.classifier.Classify(md.Fields), nil
}

// observe inspects dataset and plans its channels.
func (s *Stages) observe(ctx context.Context, dataset string) (*observation, error) {
	md, roles, err := s.inspect(ctx, dataset)
	if err != nil {
		return nil, err
	}
	plan, err := channelplan.Plan(channelplan.WindowOf(md))
	if err != nil {
		return nil, err
	}
	logger.Event("channel plan",
		"dataset", dataset, "channels", md.NumChannels(), "band", plan.Band,
		"cutoff", plan.BadAntennaCutoff, "flag_spw", plan.FlaggingWindow,
		"cal_spw", plan.CalibrationWindow, "stats_spw", plan.StatisticsWindow)
	return &observation{md: md, roles: roles, plan: plan}, nil
}

// splitFile resolves the target split of the run: the one the split stage chose, the configured
// one, or the split of the last target of the multi-source dataset.
func (s *Stages) splitFile(ctx context.Context, cfg *config.Config, run *model.PipelineRun) (string, error) {
	if name := run.ExecutionContext.GetString(KeySplitFile); name != "" {
		return name, nil
	}
	if name := cfg.Capture.Inputs.SplitFile; name != "" {
		return name, nil
	}
	if cfg.Capture.Inputs.MSFile == "" {
		return "", exception.NewBatchErrorf(module, exception.KindConfiguration,
			"inputs.split_file or inputs.ms_file is required to locate the target split")
	}
	_, roles, err := s.inspect(ctx, cfg.Capture.Inputs.MSFile)
	if err != nil {
		return "", err
	}
	if len(roles.Targets) == 0 {
		return "", exception.NewEmptyRoleSetWarning(module, "target", "split lookup")
	}
	return split.FileName(roles.Targets[len(roles.Targets)-1]), nil
}

// avgFile resolves the averaged split of the run.
func (s *Stages) avgFile(ctx context.Context, cfg *config.Config, run *model.PipelineRun) (string, error) {
	if name := run.ExecutionContext.GetString(KeyAvgFile); name != "" {
		return name, nil
	}
	if name := cfg.Capture.Inputs.SplitAvgFile; name != "" {
		return name, nil
	}
	sf, err := s.splitFile(ctx, cfg, run)
	if err != nil {
		return "", err
	}
	return split.AverageName(sf), nil
}

// dataset resolves one of the stage inputs.
func (s *Stages) dataset(ctx context.Context, cfg *config.Config, run *model.PipelineRun, input string) (string, error) {
	switch input {
	case InputMS:
		return cfg.Capture.Inputs.MSFile, nil
	case InputSplit:
		return s.splitFile(ctx, cfg, run)
	case InputAverage:
		return s.avgFile(ctx, cfg, run)
	default:
		return "", exception.NewBatchErrorf(module, exception.KindConfiguration, "unknown stage input %q", input)
	}
}
