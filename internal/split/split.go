// Package split extracts the calibrated target fields into their own datasets and averages them
// in frequency for imaging.
package split

import (
	"context"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "split"

// FileName is the split dataset of a target.
func FileName(target string) string {
	return target + "split.ms"
}

// AverageName is the averaged dataset of a split.
func AverageName(split string) string {
	return "avg-" + split
}

// Splitter runs the split and average steps.
type Splitter struct {
	eng engine.Engine
}

// NewSplitter creates a Splitter.
func NewSplitter(eng engine.Engine) *Splitter {
	return &Splitter{eng: eng}
}

// Targets splits the corrected data of every target on the calibration window into its own
// dataset and returns the split names in target order. Existing splits are replaced.
func (s *Splitter) Targets(ctx context.Context, dataset string, targets []string, plan channelplan.ChannelPlan) ([]string, error) {
	if err := engine.Require(ctx, s.eng, module, dataset); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		name := FileName(t)
		if err := s.eng.Delete(ctx, name); err != nil {
			return nil, err
		}
		logger.Infof("Splitting target %s of %s into %s (spw %s).", t, dataset, name, plan.CalibrationWindow)
		if _, err := s.eng.Transform(ctx, dataset, engine.TransformRequest{
			Output:  name,
			Fields:  []string{t},
			Spw:     plan.CalibrationWindow,
			Column:  engine.ColumnCorrected,
			ChanBin: 1,
		}); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// Average bins chanAvg channels of split into its averaged dataset and returns its name.
func (s *Splitter) Average(ctx context.Context, split string, chanAvg int) (string, error) {
	if err := engine.Require(ctx, s.eng, module, split); err != nil {
		return "", err
	}
	name := AverageName(split)
	if err := s.eng.Delete(ctx, name); err != nil {
		return "", err
	}
	logger.Infof("Averaging %s by %d channels into %s.", split, chanAvg, name)
	return s.eng.Transform(ctx, split, engine.TransformRequest{
		Output:  name,
		Column:  engine.ColumnData,
		ChanBin: chanAvg,
	})
}

// Downstream returns the split dataset used after splitting: configured when set, else the last
// split.
func Downstream(configured string, splits []string) string {
	if configured != "" {
		return configured
	}
	if len(splits) == 0 {
		return ""
	}
	return splits[len(splits)-1]
}
