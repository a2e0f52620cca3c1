package casa

import (
	"strings"

	"github.com/tigerroll/capture/internal/engine"
)

// flagArgs maps a FlagRequest onto flagdata keyword arguments.
func flagArgs(vis string, req engine.FlagRequest) []arg {
	args := []arg{{"vis", vis}, {"mode", string(req.Mode)}}
	if req.Mode == engine.FlagList {
		return append(args, arg{"inpfile", req.Commands})
	}
	args = append(args,
		arg{"field", strings.Join(req.Fields, ",")},
		arg{"spw", req.Spw},
		arg{"antenna", req.Antenna},
		arg{"scan", req.Scan},
	)
	if req.Column != "" {
		args = append(args, arg{"datacolumn", string(req.Column)})
	}
	switch req.Mode {
	case engine.FlagQuack:
		args = append(args, arg{"quackinterval", req.QuackInterval}, arg{"quackmode", req.QuackMode})
	case engine.FlagClip:
		args = append(args, arg{"clipminmax", []float64{req.ClipMin, req.ClipMax}}, arg{"clipoutside", true}, arg{"clipzeros", true})
	case engine.FlagTFCrop:
		args = append(args,
			arg{"ntime", "scan"},
			arg{"timecutoff", req.TimeCutoff},
			arg{"freqcutoff", req.FreqCutoff},
			arg{"timefit", orLine(req.TimeFit)},
			arg{"freqfit", orLine(req.FreqFit)},
			arg{"flagdimension", "freqtime"},
			arg{"extendflags", false},
		)
	case engine.FlagRFlag:
		args = append(args,
			arg{"ntime", "scan"},
			arg{"timefit", orLine(req.TimeFit)},
			arg{"freqfit", orLine(req.FreqFit)},
			arg{"flagdimension", "freqtime"},
			arg{"extendflags", false},
			arg{"timedevscale", req.TimeDevScale},
			arg{"freqdevscale", req.FreqDevScale},
			arg{"spectralmax", 500.0},
		)
	case engine.FlagExtend:
		args = append(args,
			arg{"ntime", "scan"},
			arg{"growtime", req.GrowTime},
			arg{"growfreq", req.GrowFreq},
			arg{"extendpols", req.ExtendPols},
			arg{"growaround", false},
			arg{"flagneartime", false},
			arg{"flagnearfreq", false},
		)
	}
	return append(args, arg{"action", "apply"}, arg{"flagbackup", false})
}

func orLine(fit string) string {
	if fit == "" {
		return "line"
	}
	return fit
}

func gaincalArgs(e *Engine, dataset string, req engine.SolveRequest) []arg {
	gaintype := req.GainType
	if gaintype == "" {
		gaintype = "G"
	}
	args := []arg{
		{"vis", e.path(dataset)},
		{"caltable", e.path(req.Table)},
		{"append", req.Append},
		{"field", strings.Join(req.Fields, ",")},
		{"spw", req.Spw},
		{"uvrange", req.UVRange},
		{"solint", req.Solint},
		{"refant", req.RefAnt},
		{"gaintype", gaintype},
		{"gaintable", e.paths(req.GainTables)},
		{"parang", true},
	}
	if req.CalMode != "" {
		args = append(args, arg{"calmode", req.CalMode})
	}
	if req.MinSNR > 0 {
		args = append(args, arg{"minsnr", req.MinSNR})
	}
	if req.SolMode != "" {
		args = append(args, arg{"solmode", req.SolMode})
	}
	if req.SolNorm {
		args = append(args, arg{"solnorm", true})
	}
	if len(req.GainTables) > 0 {
		args = append(args, arg{"interp", repeat("nearest,nearestflag", len(req.GainTables))})
	}
	return args
}
