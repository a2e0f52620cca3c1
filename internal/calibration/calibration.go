// Package calibration solves and applies the delay, bandpass, gain and flux-scale tables of a
// multi-source dataset from its calibrator fields.
package calibration

import (
	"context"
	"strings"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "calibration"

// Table suffixes of the two calibration passes.
const (
	SuffixInitial = ""
	SuffixRedo    = "recal"
)

// fluxReferences are preferred flux-scale references, best first.
var fluxReferences = []string{"3C286", "3C147"}

// Tables names the tables of one calibration pass.
type Tables struct {
	Delay       string
	InitialGain string
	Bandpass    string
	Gain        string
	FluxScale   string
}

// TablesFor returns the table names of dataset for a pass suffix.
func TablesFor(dataset, suffix string) Tables {
	return Tables{
		Delay:       dataset + ".K1" + suffix,
		InitialGain: dataset + ".AP.G0" + suffix,
		Bandpass:    dataset + ".B1" + suffix,
		Gain:        dataset + ".AP.G" + suffix,
		FluxScale:   dataset + ".fluxscale" + suffix,
	}
}

// All lists every table name in solve order.
func (t Tables) All() []string {
	return []string{t.Delay, t.InitialGain, t.Bandpass, t.Gain, t.FluxScale}
}

// Result describes a completed calibration pass.
type Result struct {
	Tables Tables
	// FluxReference is empty when the flux scale was skipped.
	FluxReference string
	// Applied are the tables applied to every field, gain table first.
	Applied []string
}

// Stage runs calibration passes.
type Stage struct {
	eng     engine.Engine
	cfg     config.CalibrationConfig
	targets bool
}

// NewStage creates a Stage. targets enables applying the solutions to the target fields.
func NewStage(eng engine.Engine, cfg config.CalibrationConfig, targets bool) *Stage {
	return &Stage{eng: eng, cfg: cfg, targets: targets}
}

// Run solves and applies one calibration pass on dataset. Without amplitude calibrators it returns
// an empty role set warning and does nothing.
func (s *Stage) Run(ctx context.Context, dataset string, roles fields.Roles, plan channelplan.ChannelPlan, suffix string) (*Result, error) {
	if len(roles.Amplitude) == 0 {
		return nil, exception.NewEmptyRoleSetWarning(module, "amplitude calibrator", "calibration")
	}
	if err := engine.Require(ctx, s.eng, module, dataset); err != nil {
		return nil, err
	}
	tables := TablesFor(dataset, suffix)
	res := &Result{Tables: tables}
	for _, name := range tables.All() {
		if err := s.eng.Delete(ctx, name); err != nil {
			return nil, err
		}
	}

	if err := s.eng.ClearCalibration(ctx, dataset); err != nil {
		return nil, err
	}
	for _, f := range roles.Amplitude {
		if err := s.eng.SetFluxModel(ctx, dataset, f, plan.FlaggingWindow); err != nil {
			return nil, err
		}
	}

	solves := []struct {
		op    func(context.Context, string, engine.SolveRequest) (engine.CalibrationTable, error)
		req   engine.SolveRequest
		label string
	}{
		{s.eng.SolveDelay, engine.SolveRequest{
			Table: tables.Delay, Fields: roles.Amplitude[:1], Spw: plan.FlaggingWindow,
			Solint: "60s", RefAnt: s.cfg.RefAnt, GainType: "K", SolNorm: true,
		}, "delay"},
		{s.eng.SolveGain, engine.SolveRequest{
			Table: tables.InitialGain, Fields: roles.Bandpass(), Spw: plan.FlaggingWindow,
			Solint: "int", RefAnt: s.cfg.RefAnt, GainType: "G", CalMode: "ap", MinSNR: 2, SolMode: "L1R",
			GainTables: []string{tables.Delay},
		}, "initial gain"},
		{s.eng.SolveBandpass, engine.SolveRequest{
			Table: tables.Bandpass, Fields: roles.Bandpass(), Spw: plan.FlaggingWindow,
			Solint: "inf", RefAnt: s.cfg.RefAnt, SolNorm: true, MinSNR: 2, FillGaps: 8,
			GainTables: []string{tables.Delay, tables.InitialGain},
		}, "bandpass"},
	}
	for _, sv := range solves {
		if _, err := sv.op(ctx, dataset, sv.req); err != nil {
			return nil, err
		}
		logger.Debugf("Calibration of %s: %s solved into %s.", dataset, sv.label, sv.req.Table)
	}

	for i, cal := range roles.Calibrators() {
		_, err := s.eng.SolveGain(ctx, dataset, engine.SolveRequest{
			Table: tables.Gain, Fields: []string{cal}, Spw: plan.CalibrationWindow, UVRange: s.cfg.UVRangeCal,
			Solint: "120s", RefAnt: s.cfg.RefAnt, GainType: "G", CalMode: "ap", MinSNR: 2, SolMode: "L1R",
			GainTables: []string{tables.Delay, tables.Bandpass},
			Append:     i > 0,
		})
		if err != nil {
			return nil, err
		}
	}

	gain := tables.Gain
	if len(roles.Phase) > 0 {
		res.FluxReference = FluxReference(roles.Amplitude)
		_, err := s.eng.SolveFluxScale(ctx, dataset, engine.FluxScaleRequest{
			Table: tables.FluxScale, Input: tables.Gain, Reference: res.FluxReference, Transfer: roles.Phase,
		})
		if err != nil {
			return nil, err
		}
		gain = tables.FluxScale
	} else {
		logger.Warn("flux scale skipped", "dataset", dataset, "reason", "no phase calibrators")
	}
	res.Applied = []string{gain, tables.Delay, tables.Bandpass}
	logger.Event("calibration tables",
		"dataset", dataset,
		"suffix", suffix,
		"flux_reference", res.FluxReference,
		"applied", strings.Join(res.Applied, ","),
	)

	if err := s.apply(ctx, dataset, roles, plan, res.Applied); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Stage) apply(ctx context.Context, dataset string, roles fields.Roles, plan channelplan.ChannelPlan, tables []string) error {
	req := func(fields, gainField, interp []string) engine.ApplyRequest {
		return engine.ApplyRequest{
			Fields: fields, Spw: plan.FlaggingWindow, GainTables: tables, GainField: gainField, Interp: interp,
		}
	}
	for _, f := range roles.Amplitude {
		if err := s.eng.Apply(ctx, dataset, req([]string{f}, []string{f, "", ""}, []string{"nearest", "", ""})); err != nil {
			return err
		}
	}
	if len(roles.Phase) > 0 {
		phase := strings.Join(roles.Phase, ",")
		if err := s.eng.Apply(ctx, dataset, req(roles.Phase, []string{phase, "", ""}, []string{"nearest", "", "nearest"})); err != nil {
			return err
		}
	}
	if !s.targets || len(roles.Targets) == 0 {
		return nil
	}
	source := roles.Phase
	if len(source) == 0 {
		source = roles.Amplitude
	}
	return s.eng.Apply(ctx, dataset, req(roles.Targets, []string{strings.Join(source, ","), "", ""}, []string{"linear", "", "nearest"}))
}

// FluxReference picks the flux-scale reference among the amplitude calibrators.
func FluxReference(amplitude []string) string {
	for _, ref := range fluxReferences {
		for _, a := range amplitude {
			if a == ref {
				return ref
			}
		}
	}
	if len(amplitude) == 0 {
		return ""
	}
	return amplitude[0]
}
