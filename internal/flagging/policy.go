// Package flagging runs the flagging passes of the pipeline from a single policy table keyed by
// processing phase, field role and baseline class.
package flagging

import (
	"github.com/tigerroll/capture/internal/engine"
)

// Phase is a point in the pipeline where flagging runs.
type Phase string

const (
	PhaseInitial         Phase = "initial"
	PhasePostCalibration Phase = "post-calibration"
	PhaseSplit           Phase = "split"
	PhaseAveraged        Phase = "averaged"
	PhaseResidual        Phase = "residual"
)

// Phases lists every phase in pipeline order.
var Phases = []Phase{PhaseInitial, PhasePostCalibration, PhaseSplit, PhaseAveraged, PhaseResidual}

// RoleSet selects the fields a rule applies to.
type RoleSet string

const (
	AllFields  RoleSet = "all"
	Amplitude  RoleSet = "amplitude"
	PhaseCal   RoleSet = "phase"
	TargetRole RoleSet = "target"
)

// BaselineClass selects baselines by antenna name.
type BaselineClass string

const (
	AllBaselines BaselineClass = "all"
	// ShortBaselines are core-core baselines: both antenna names contain C.
	ShortBaselines BaselineClass = "short"
	LongBaselines  BaselineClass = "long"
)

// ClipSource names the configured clip range a clip rule uses.
type ClipSource int

const (
	noClip ClipSource = iota
	ClipFluxCal
	ClipPhaseCal
	ClipTarget
	ClipResidual
)

// SpwSource names the channel selection of a rule.
type SpwSource int

const (
	SpwAll SpwSource = iota
	// SpwFirstChannel is channel 0 of spectral window 0.
	SpwFirstChannel
	// SpwWindow0 is all of spectral window 0.
	SpwWindow0
	// SpwFlagging is the flagging window of the channel plan.
	SpwFlagging
)

// Rule is one row of the policy table.
type Rule struct {
	Phase     Phase
	Role      RoleSet
	Baselines BaselineClass
	Spw       SpwSource
	Clip      ClipSource
	// Target marks initial rules that only run when target flagging is enabled.
	Target bool
	// Request is the flag command template; fields, spw, antenna, clip range and quack interval
	// are filled in when the rule runs.
	Request engine.FlagRequest
}

func quack(mode string) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagQuack, QuackMode: mode}
}

func clip(col engine.Column) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagClip, Column: col}
}

func tfcrop(col engine.Column, tcut, fcut float64, timeFit, freqFit string) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagTFCrop, Column: col, TimeCutoff: tcut, FreqCutoff: fcut, TimeFit: timeFit, FreqFit: freqFit}
}

func rflag(col engine.Column, tdev, fdev float64, timeFit, freqFit string) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagRFlag, Column: col, TimeDevScale: tdev, FreqDevScale: fdev, TimeFit: timeFit, FreqFit: freqFit}
}

func extend(col engine.Column, grow float64, pols bool) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagExtend, Column: col, GrowTime: grow, GrowFreq: grow, ExtendPols: pols}
}

func summary(col engine.Column) engine.FlagRequest {
	return engine.FlagRequest{Mode: engine.FlagSummary, Column: col}
}

const (
	data      = engine.ColumnData
	corrected = engine.ColumnCorrected
	residual  = engine.ColumnResidual
)

// Policy is the flagging policy table. Rules of a phase run in table order.
var Policy = []Rule{
	{Phase: PhaseInitial, Role: AllFields, Spw: SpwFirstChannel, Request: engine.FlagRequest{Mode: engine.FlagManual}},
	{Phase: PhaseInitial, Role: AllFields, Spw: SpwWindow0, Request: quack("beg")},
	{Phase: PhaseInitial, Role: AllFields, Spw: SpwWindow0, Request: quack("endb")},
	{Phase: PhaseInitial, Role: Amplitude, Spw: SpwFlagging, Clip: ClipFluxCal, Request: clip(data)},
	{Phase: PhaseInitial, Role: PhaseCal, Spw: SpwFlagging, Clip: ClipPhaseCal, Request: clip(data)},
	{Phase: PhaseInitial, Role: PhaseCal, Request: tfcrop(data, 5, 5, "line", "line")},
	{Phase: PhaseInitial, Role: PhaseCal, Spw: SpwFlagging, Request: extend(data, 80, true)},
	{Phase: PhaseInitial, Role: TargetRole, Target: true, Spw: SpwFlagging, Clip: ClipTarget, Request: clip(data)},
	{Phase: PhaseInitial, Role: TargetRole, Target: true, Request: tfcrop(data, 6, 6, "poly", "poly")},
	{Phase: PhaseInitial, Role: TargetRole, Target: true, Spw: SpwFlagging, Request: extend(data, 80, true)},
	{Phase: PhaseInitial, Role: AllFields, Target: true, Request: summary(data)},

	{Phase: PhasePostCalibration, Role: Amplitude, Spw: SpwFlagging, Clip: ClipFluxCal, Request: clip(corrected)},
	{Phase: PhasePostCalibration, Role: PhaseCal, Spw: SpwFlagging, Clip: ClipPhaseCal, Request: clip(corrected)},
	{Phase: PhasePostCalibration, Role: PhaseCal, Request: tfcrop(corrected, 6, 5, "line", "line")},
	{Phase: PhasePostCalibration, Role: PhaseCal, Request: rflag(corrected, 4, 4, "poly", "line")},
	{Phase: PhasePostCalibration, Role: PhaseCal, Spw: SpwFlagging, Request: extend(corrected, 90, false)},
	{Phase: PhasePostCalibration, Role: TargetRole, Spw: SpwFlagging, Clip: ClipTarget, Request: clip(corrected)},
	{Phase: PhasePostCalibration, Role: TargetRole, Baselines: ShortBaselines, Request: tfcrop(corrected, 8, 8, "poly", "line")},
	{Phase: PhasePostCalibration, Role: TargetRole, Baselines: LongBaselines, Request: tfcrop(corrected, 6, 5, "poly", "line")},
	{Phase: PhasePostCalibration, Role: TargetRole, Baselines: ShortBaselines, Request: rflag(corrected, 8, 5, "poly", "poly")},
	{Phase: PhasePostCalibration, Role: TargetRole, Baselines: LongBaselines, Request: rflag(corrected, 5, 5, "poly", "poly")},
	{Phase: PhasePostCalibration, Role: AllFields, Request: summary(corrected)},

	{Phase: PhaseSplit, Role: AllFields, Request: tfcrop(data, 8, 8, "line", "line")},
	{Phase: PhaseSplit, Role: AllFields, Baselines: ShortBaselines, Request: rflag(data, 6, 6, "line", "line")},
	{Phase: PhaseSplit, Role: AllFields, Baselines: LongBaselines, Request: rflag(data, 5, 5, "line", "line")},
	{Phase: PhaseSplit, Role: AllFields, Request: summary(data)},

	{Phase: PhaseAveraged, Role: AllFields, Baselines: LongBaselines, Request: rflag(data, 6, 6, "line", "line")},
	{Phase: PhaseAveraged, Role: AllFields, Baselines: ShortBaselines, Request: rflag(data, 6, 6, "line", "line")},
	{Phase: PhaseAveraged, Role: AllFields, Request: summary(data)},

	{Phase: PhaseResidual, Role: AllFields, Request: rflag(residual, 6, 6, "line", "line")},
	{Phase: PhaseResidual, Role: AllFields, Clip: ClipResidual, Request: clip(residual)},
	{Phase: PhaseResidual, Role: AllFields, Request: summary(residual)},
}

// RulesFor returns the rules of phase in table order.
func RulesFor(phase Phase) []Rule {
	var out []Rule
	for _, r := range Policy {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out
}
