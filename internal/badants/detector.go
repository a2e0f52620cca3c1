// Package badants finds antennas with anomalously low amplitude on calibrator scans and the
// channels of persistent RFI bands, and turns both into batched manual flag commands.
package badants

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/fields"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// singlePolScale stands in for the missing correlation of single-polarization data so that the
// present one decides.
const singlePolScale = 100.0

// ScanResult holds the antenna amplitudes measured on one calibrator scan.
type ScanResult struct {
	Scan  int
	Field string
	// Means maps an antenna to the smaller of its two correlation means.
	Means map[string]float64
	Bad   []string
}

// Result is the outcome of a detection pass.
type Result struct {
	Cutoff   float64
	Scans    []ScanResult
	Commands []string
}

// BadAntennas returns every antenna found bad on at least one scan, sorted.
func (r *Result) BadAntennas() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.Scans {
		for _, a := range s.Bad {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Detector measures antenna amplitudes through the engine.
type Detector struct {
	eng engine.Engine
}

// NewDetector creates a Detector.
func NewDetector(eng engine.Engine) *Detector {
	return &Detector{eng: eng}
}

// FlagCommand renders the manual flag command for antennas on scan.
func FlagCommand(antennas []string, scan int) string {
	return fmt.Sprintf("mode='manual' antenna='%s' scan='%d'", strings.Join(antennas, "; "), scan)
}

// Find measures every antenna on every calibrator scan. Amplitude calibrator scans come first,
// then phase calibrator scans, each in ascending order. A scan with bad antennas yields one
// command, repeated for the neighbouring scans that belong to targets.
func (d *Detector) Find(ctx context.Context, md *engine.Metadata, roles fields.Roles, plan channelplan.ChannelPlan) (*Result, error) {
	corrA, corrB, single := correlationPair(md)
	targetScans := map[int]bool{}
	for _, s := range md.ScansOf(roles.Targets...) {
		targetScans[s] = true
	}

	res := &Result{Cutoff: plan.BadAntennaCutoff}
	for _, cs := range calibratorScans(md, roles) {
		sr := ScanResult{Scan: cs.scan, Field: cs.field, Means: make(map[string]float64, len(md.Antennas))}
		for _, ant := range md.Antennas {
			req := engine.StatisticsRequest{
				Spw:     plan.StatisticsWindow,
				Antenna: ant,
				Scan:    cs.scan,
				Column:  engine.ColumnData,
			}
			req.Correlation = corrA
			a, err := d.eng.Statistics(ctx, md.Dataset, req)
			if err != nil {
				return nil, err
			}
			b := a * singlePolScale
			if !single {
				req.Correlation = corrB
				if b, err = d.eng.Statistics(ctx, md.Dataset, req); err != nil {
					return nil, err
				}
			}
			mean := min(a, b)
			sr.Means[ant] = mean
			if mean < plan.BadAntennaCutoff {
				sr.Bad = append(sr.Bad, ant)
			}
		}
		logger.Event("bad antennas", "scan", cs.scan, "field", cs.field, "antennas", sr.Bad, "cutoff", plan.BadAntennaCutoff)
		res.Scans = append(res.Scans, sr)
		if len(sr.Bad) == 0 {
			continue
		}
		res.Commands = append(res.Commands, FlagCommand(sr.Bad, cs.scan))
		for _, adj := range []int{cs.scan - 1, cs.scan + 1} {
			if targetScans[adj] {
				res.Commands = append(res.Commands, FlagCommand(sr.Bad, adj))
			}
		}
	}
	for _, c := range res.Commands {
		logger.Debugf("Bad antenna command: %s", c)
	}
	return res, nil
}

type fieldScan struct {
	field string
	scan  int
}

func calibratorScans(md *engine.Metadata, roles fields.Roles) []fieldScan {
	var out []fieldScan
	for _, group := range [][]string{roles.Amplitude, roles.Phase} {
		owner := map[int]string{}
		for _, f := range group {
			for _, s := range md.Scans[f] {
				owner[s] = f
			}
		}
		for _, s := range md.ScansOf(group...) {
			out = append(out, fieldScan{field: owner[s], scan: s})
		}
	}
	return out
}

// correlationPair picks the parallel-hand correlations to compare.
func correlationPair(md *engine.Metadata) (a, b string, single bool) {
	switch {
	case len(md.Correlations) == 1:
		return md.Correlations[0], "", true
	case md.HasCorrelation("RR") && md.HasCorrelation("LL"):
		return "RR", "LL", false
	case md.HasCorrelation("XX") && md.HasCorrelation("YY"):
		return "XX", "YY", false
	case len(md.Correlations) >= 2:
		return md.Correlations[0], md.Correlations[len(md.Correlations)-1], false
	default:
		return "", "", true
	}
}

// Apply runs commands as one batched list-mode flag call. No commands is a no-op.
func Apply(ctx context.Context, eng engine.Engine, dataset string, commands []string) error {
	if len(commands) == 0 {
		logger.Infof("No flag commands to apply on %s.", dataset)
		return nil
	}
	logger.Infof("Applying %d flag commands to %s.", len(commands), dataset)
	_, err := eng.Flag(ctx, dataset, engine.FlagRequest{Mode: engine.FlagList, Commands: commands})
	return err
}
