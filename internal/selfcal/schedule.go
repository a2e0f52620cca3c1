// Package selfcal runs the self-calibration loop on a split target: image, flag the residual,
// solve and apply a gain table, split the corrected data and repeat with deeper deconvolution.
package selfcal

import (
	"math"
	"strconv"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

const module = "selfcal"

// maxNiter caps the deconvolution depth.
const maxNiter = 200000

// Mode is the calibration mode of an iteration.
type Mode string

const (
	// ModePhase solves phases only.
	ModePhase Mode = "p"
	// ModeAmpPhase solves amplitudes and phases with normalized solutions.
	ModeAmpPhase Mode = "ap"
)

// Iteration is one planned pass of the loop.
type Iteration struct {
	Index     int
	Niter     int
	Threshold string
	Mode      Mode
	// Solint is empty for the final iteration, which only images.
	Solint string
	Final  bool
}

// Schedule is the full plan of the loop, iteration 0 first.
type Schedule []Iteration

// Loops returns the number of calibrating iterations.
func (s Schedule) Loops() int {
	return len(s) - 1
}

// PlanSchedule derives the iterations from cfg. Zero loops plans a single dirty image.
func PlanSchedule(cfg config.SelfCalConfig) (Schedule, error) {
	n := cfg.Loops
	if n < 0 {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "loops must not be negative, got %d", n)
	}
	if n == 0 {
		return Schedule{{Niter: 0, Threshold: FormatThreshold(cfg.MJyThreshold), Mode: ModePhase, Final: true}}, nil
	}
	if len(cfg.Solints) < n {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration,
			"%d solution intervals configured for %d loops", len(cfg.Solints), n)
	}
	s := make(Schedule, 0, n+1)
	for i := 0; i <= n; i++ {
		it := Iteration{
			Index:     i,
			Niter:     niter(cfg.NiterStart, i),
			Threshold: FormatThreshold(cfg.MJyThreshold / float64(i+1)),
			Mode:      ModeAmpPhase,
			Final:     i == n,
		}
		if i == 0 && cfg.DirtyFirst {
			it.Niter = 0
		}
		if i < cfg.PhaseLoops {
			it.Mode = ModePhase
		}
		if !it.Final {
			it.Solint = cfg.Solints[i]
		}
		s = append(s, it)
	}
	return s, nil
}

func niter(start, i int) int {
	n := start
	for ; i > 0 && n < maxNiter; i-- {
		n *= 2
	}
	return min(n, maxNiter)
}

// FormatThreshold renders a threshold in mJy rounded to two decimals: 10mJy, 3.33mJy.
func FormatThreshold(mjy float64) string {
	return strconv.FormatFloat(math.Round(mjy*100)/100, 'f', -1, 64) + "mJy"
}
