package selfcal

import (
	"context"
	"fmt"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	"github.com/tigerroll/capture/internal/flagging"
	port "github.com/tigerroll/capture/pkg/batch/core/application/port"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// TableName is the gain table of iteration i for a window suffix.
func TableName(field string, mode Mode, i int, suffix string) string {
	return fmt.Sprintf("%s%s%d%s.GT", field, mode, i, suffix)
}

// SplitName is the dataset produced by iteration i.
func SplitName(field string, i int) string {
	return fmt.Sprintf("%s-selfcal%d.ms", field, i)
}

// Result is the outcome of the loop.
type Result struct {
	Field       string
	Schedule    Schedule
	Windows     []Window
	Generations []*Generation
}

// Final returns the generation imaged by the last iteration.
func (r *Result) Final() *Generation {
	return r.Generations[len(r.Generations)-1]
}

// Images returns the image of every iteration in order.
func (r *Result) Images() []engine.Image {
	out := make([]engine.Image, 0, len(r.Generations))
	for _, g := range r.Generations {
		out = append(out, g.Image)
	}
	return out
}

// Tables returns the gain tables of every calibrating iteration in order.
func (r *Result) Tables() [][]string {
	var out [][]string
	for _, g := range r.Generations {
		if len(g.Tables) > 0 {
			out = append(out, g.Tables)
		}
	}
	return out
}

// Loop runs self-calibration.
type Loop struct {
	eng      engine.Engine
	flagger  *flagging.Flagger
	imager   *Imager
	cfg      config.SelfCalConfig
	cal      config.CalibrationConfig
	recorder metrics.MetricRecorder
}

// NewLoop creates a Loop.
func NewLoop(eng engine.Engine, flagger *flagging.Flagger, imager *Imager, cfg config.SelfCalConfig, cal config.CalibrationConfig, recorder metrics.MetricRecorder) *Loop {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Loop{eng: eng, flagger: flagger, imager: imager, cfg: cfg, cal: cal, recorder: recorder}
}

// Run self-calibrates dataset. With subband set every chunk of subband_chan channels gets its own
// gain solution.
func (l *Loop) Run(ctx context.Context, dataset string, subband bool) (*Result, error) {
	schedule, err := PlanSchedule(l.cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.Require(ctx, l.eng, module, dataset); err != nil {
		return nil, err
	}
	windows := singleBand
	if subband {
		if windows, err = subbands(ctx, l.eng, dataset, l.cfg.SubbandChan); err != nil {
			return nil, err
		}
	}
	md, err := l.eng.Metadata(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if len(md.Fields) == 0 {
		return nil, exception.NewEmptyRoleSetWarning(module, "target", "self-calibration")
	}
	field := md.Fields[0]
	if err := l.eng.ClearCalibration(ctx, dataset); err != nil {
		return nil, err
	}

	for _, it := range schedule {
		logger.Event("selfcal schedule",
			"field", field, "iteration", it.Index, "niter", it.Niter,
			"threshold", it.Threshold, "mode", string(it.Mode), "solint", it.Solint)
	}

	arena := NewArena(l.eng, dataset, l.cfg.KeepGenerations)
	var prior []string
	for _, it := range schedule {
		gen := arena.Current()
		ictx := port.WithGeneration(ctx, gen.Index)
		if err := engine.Require(ictx, l.eng, module, gen.Dataset); err != nil {
			return nil, err
		}
		logger.Infof("Self-calibration of %s: iteration %d/%d on %s.", field, it.Index, schedule.Loops(), gen.Dataset)

		gen.Image, gen.FITS, err = l.imager.Make(ictx, gen.Dataset, field, it.Index, it.Niter, it.Threshold)
		if err != nil {
			return nil, err
		}
		// Terminal dirty mode only images.
		if schedule.Loops() > 0 {
			if err := l.flagResidual(ictx, gen.Dataset); err != nil {
				return nil, err
			}
		}

		if !it.Final {
			if gen.Tables, err = l.calibrate(ictx, gen.Dataset, field, it, windows, prior); err != nil {
				return nil, err
			}
			prior = gen.Tables
			out := SplitName(field, it.Index)
			if err := l.eng.Delete(ictx, out); err != nil {
				return nil, err
			}
			if _, err := l.eng.Transform(port.WithGeneration(ctx, gen.Index+1), gen.Dataset, engine.TransformRequest{
				Output: out,
				Column: engine.ColumnCorrected,
			}); err != nil {
				return nil, err
			}
			if _, err := arena.Produce(ictx, out); err != nil {
				return nil, err
			}
		}
		l.recorder.RecordSelfCalIteration(ictx, field, it.Index, it.Niter, string(it.Mode))
	}

	res := &Result{Field: field, Schedule: schedule, Windows: windows, Generations: arena.Generations()}
	final := res.Final()
	logger.Event("selfcal result",
		"field", field, "dataset", final.Dataset, "image", final.Image.Name, "fits", final.FITS,
		"tables", len(res.Tables()))
	return res, nil
}

func (l *Loop) flagResidual(ctx context.Context, dataset string) error {
	md, err := l.eng.Metadata(ctx, dataset)
	if err != nil {
		return err
	}
	_, err = l.flagger.Run(ctx, flagging.PhaseResidual, flagging.Input{Metadata: md, Roles: fields.Roles{Targets: md.Fields}})
	return err
}

// calibrate solves and applies one gain table per window and returns the tables.
func (l *Loop) calibrate(ctx context.Context, dataset, field string, it Iteration, windows []Window, prior []string) ([]string, error) {
	uvrange := ""
	if it.Mode == ModePhase {
		uvrange = l.cal.UVRangeSelfCal
	}
	tables := make([]string, 0, len(windows))
	for k, w := range windows {
		table := TableName(field, it.Mode, it.Index, w.Suffix)
		if err := l.eng.Delete(ctx, table); err != nil {
			return nil, err
		}
		req := engine.SolveRequest{
			Table:    table,
			Fields:   []string{field},
			Spw:      w.Spw,
			UVRange:  uvrange,
			Solint:   it.Solint,
			RefAnt:   l.cal.RefAnt,
			GainType: "G",
			CalMode:  string(it.Mode),
			MinSNR:   2,
			SolMode:  "L1R",
			SolNorm:  it.Mode == ModeAmpPhase,
		}
		if k < len(prior) {
			req.PriorTable = prior[k]
		}
		if _, err := l.eng.SolveGain(ctx, dataset, req); err != nil {
			return nil, err
		}
		if err := l.eng.Apply(ctx, dataset, engine.ApplyRequest{
			Fields:     []string{field},
			Spw:        w.Spw,
			GainTables: []string{table},
			GainField:  []string{field},
			Interp:     []string{"linear"},
			ApplyMode:  "calflag",
		}); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}
