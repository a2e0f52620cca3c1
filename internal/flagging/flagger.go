package flagging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "flagging"

// Flagger applies the policy table through the engine.
type Flagger struct {
	eng      engine.Engine
	recorder metrics.MetricRecorder
	cfg      config.FlaggingConfig
	// targets enables the target rules of the initial phase.
	targets bool
}

// NewFlagger creates a Flagger.
func NewFlagger(eng engine.Engine, recorder metrics.MetricRecorder, cfg config.FlaggingConfig, targets bool) *Flagger {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Flagger{eng: eng, recorder: recorder, cfg: cfg, targets: targets}
}

// Input is the dataset a phase flags.
type Input struct {
	Metadata *engine.Metadata
	Roles    fields.Roles
	// Plan is required by phases with rules on the flagging window.
	Plan *channelplan.ChannelPlan
}

// Run applies every rule of phase. A rule whose role set or baseline class is empty is skipped.
// The summary of the phase is returned.
func (f *Flagger) Run(ctx context.Context, phase Phase, in Input) (*engine.FlagCounts, error) {
	dataset := in.Metadata.Dataset
	logger.Infof("Flagging %s: %s phase.", dataset, phase)
	var result *engine.FlagCounts
	for i, rule := range RulesFor(phase) {
		req, ok, err := f.resolve(rule, in)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debugf("Flagging %s: rule %d of %s phase has nothing to select, skipped.", dataset, i, phase)
			continue
		}
		logger.Debugf("Flagging %s: %s", dataset, req)
		summary, err := f.eng.Flag(ctx, dataset, req)
		if err != nil {
			return nil, err
		}
		if req.Mode == engine.FlagSummary {
			result = summary
			f.report(ctx, phase, dataset, summary)
		}
	}
	return result, nil
}

// resolve fills the rule template for in. ok is false when the rule selects nothing.
func (f *Flagger) resolve(rule Rule, in Input) (req engine.FlagRequest, ok bool, err error) {
	if rule.Target && !f.targets {
		return req, false, nil
	}
	req = rule.Request
	req.Commands = nil

	switch rule.Role {
	case Amplitude:
		req.Fields = in.Roles.Amplitude
	case PhaseCal:
		req.Fields = in.Roles.Phase
	case TargetRole:
		req.Fields = in.Roles.Targets
	}
	if rule.Role != AllFields && len(req.Fields) == 0 {
		return req, false, nil
	}

	if rule.Baselines != AllBaselines && rule.Baselines != "" {
		req.Antenna = BaselineSelector(in.Metadata.Antennas, rule.Baselines)
		if req.Antenna == "" {
			return req, false, nil
		}
	}

	switch rule.Spw {
	case SpwFirstChannel:
		req.Spw = "0:0"
	case SpwWindow0:
		req.Spw = "0"
	case SpwFlagging:
		if in.Plan == nil {
			return req, false, exception.NewBatchErrorf(module, exception.KindInternal,
				"%s phase needs a channel plan for %s", rule.Phase, in.Metadata.Dataset)
		}
		req.Spw = in.Plan.FlaggingWindow
	}

	switch rule.Clip {
	case ClipFluxCal:
		req.ClipMin, req.ClipMax = f.cfg.ClipFluxCal.Min(), f.cfg.ClipFluxCal.Max()
	case ClipPhaseCal:
		req.ClipMin, req.ClipMax = f.cfg.ClipPhaseCal.Min(), f.cfg.ClipPhaseCal.Max()
	case ClipTarget:
		req.ClipMin, req.ClipMax = f.cfg.ClipTarget.Min(), f.cfg.ClipTarget.Max()
	case ClipResidual:
		req.ClipMin, req.ClipMax = f.cfg.ClipResid.Min(), f.cfg.ClipResid.Max()
	}
	if req.Mode == engine.FlagQuack {
		req.QuackInterval = f.cfg.QuackInterval
	}
	return req, true, nil
}

func (f *Flagger) report(ctx context.Context, phase Phase, dataset string, summary *engine.FlagCounts) {
	if summary == nil {
		return
	}
	names := make([]string, 0, len(summary.Fields))
	for n := range summary.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		ff := summary.Fields[n]
		f.recorder.RecordFlagFraction(ctx, string(phase), n, ff.Fraction())
		logger.Event("flag summary",
			"phase", string(phase),
			"dataset", dataset,
			"field", n,
			"flagged", humanize.Comma(int64(ff.Flagged)),
			"total", humanize.Comma(int64(ff.Total)),
			"percent", fmt.Sprintf("%.2f", 100*ff.Fraction()),
		)
	}
	total := summary.Total()
	logger.Infof("Flagging %s after %s phase: %s%% of %s visibilities flagged.",
		dataset, phase, humanize.FtoaWithDigits(100*total.Fraction(), 2), humanize.Comma(int64(total.Total)))
}

// BaselineSelector renders the baselines of class as an antenna selection "A&B; A&C; ...".
// It is empty when the class has no baselines.
func BaselineSelector(antennas []string, class BaselineClass) string {
	var sel []string
	for i := 0; i < len(antennas); i++ {
		for j := i + 1; j < len(antennas); j++ {
			bl := antennas[i] + "&" + antennas[j]
			short := strings.Count(bl, "C") == 2
			if (class == ShortBaselines) == short {
				sel = append(sel, bl)
			}
		}
	}
	return strings.Join(sel, "; ")
}
