// Package report collects the decisions of a run into tabular reports and publishes them, with the
// exported images, to the object store.
package report

import (
	"sort"
	"strings"
	"sync"

	"github.com/tigerroll/capture/internal/badants"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/selfcal"
)

// BadAntennaRow is one antenna measured on one calibrator scan.
type BadAntennaRow struct {
	Scan    int32   `parquet:"name=scan, type=INT32"`
	Field   string  `parquet:"name=field, type=BYTE_ARRAY, convertedtype=UTF8"`
	Antenna string  `parquet:"name=antenna, type=BYTE_ARRAY, convertedtype=UTF8"`
	Mean    float64 `parquet:"name=mean, type=DOUBLE"`
	Cutoff  float64 `parquet:"name=cutoff, type=DOUBLE"`
	Bad     bool    `parquet:"name=bad, type=BOOLEAN"`
}

// FlagRow is the flag count of one field after a flagging phase.
type FlagRow struct {
	Phase    string  `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dataset  string  `parquet:"name=dataset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Field    string  `parquet:"name=field, type=BYTE_ARRAY, convertedtype=UTF8"`
	Flagged  float64 `parquet:"name=flagged, type=DOUBLE"`
	Total    float64 `parquet:"name=total, type=DOUBLE"`
	Fraction float64 `parquet:"name=fraction, type=DOUBLE"`
}

// ScheduleRow is one self-calibration iteration.
type ScheduleRow struct {
	Field     string `parquet:"name=field, type=BYTE_ARRAY, convertedtype=UTF8"`
	Iteration int32  `parquet:"name=iteration, type=INT32"`
	Niter     int32  `parquet:"name=niter, type=INT32"`
	Threshold string `parquet:"name=threshold, type=BYTE_ARRAY, convertedtype=UTF8"`
	Mode      string `parquet:"name=mode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Solint    string `parquet:"name=solint, type=BYTE_ARRAY, convertedtype=UTF8"`
	Dataset   string `parquet:"name=dataset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Image     string `parquet:"name=image, type=BYTE_ARRAY, convertedtype=UTF8"`
	Tables    string `parquet:"name=tables, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Report accumulates the rows of a run. It is safe for concurrent use.
type Report struct {
	mu          sync.Mutex
	badAntennas []BadAntennaRow
	flags       []FlagRow
	schedule    []ScheduleRow
	fits        []string
}

// New creates an empty Report.
func New() *Report {
	return &Report{}
}

// AddBadAntennas records every antenna measurement of a detection pass.
func (r *Report) AddBadAntennas(res *badants.Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range res.Scans {
		bad := make(map[string]bool, len(s.Bad))
		for _, a := range s.Bad {
			bad[a] = true
		}
		ants := make([]string, 0, len(s.Means))
		for a := range s.Means {
			ants = append(ants, a)
		}
		sort.Strings(ants)
		for _, a := range ants {
			r.badAntennas = append(r.badAntennas, BadAntennaRow{
				Scan: int32(s.Scan), Field: s.Field, Antenna: a, Mean: s.Means[a], Cutoff: res.Cutoff, Bad: bad[a],
			})
		}
	}
}

// AddFlags records a flag summary.
func (r *Report) AddFlags(phase, dataset string, counts *engine.FlagCounts) {
	if counts == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(counts.Fields))
	for f := range counts.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		c := counts.Fields[f]
		r.flags = append(r.flags, FlagRow{
			Phase: phase, Dataset: dataset, Field: f, Flagged: c.Flagged, Total: c.Total, Fraction: c.Fraction(),
		})
	}
}

// AddSelfCal records the iterations of a self-calibration run and its FITS images.
func (r *Report) AddSelfCal(res *selfcal.Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range res.Schedule {
		row := ScheduleRow{
			Field:     res.Field,
			Iteration: int32(it.Index),
			Niter:     int32(it.Niter),
			Threshold: it.Threshold,
			Mode:      string(it.Mode),
			Solint:    it.Solint,
		}
		if i < len(res.Generations) {
			g := res.Generations[i]
			row.Dataset = g.Dataset
			row.Image = g.Image.Name
			row.Tables = strings.Join(g.Tables, ",")
			if g.FITS != "" {
				r.fits = append(r.fits, g.FITS)
			}
		}
		r.schedule = append(r.schedule, row)
	}
}

// AddFITS records an exported image outside the self-calibration loop.
func (r *Report) AddFITS(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fits = append(r.fits, path)
}

// BadAntennas returns a copy of the bad antenna rows.
func (r *Report) BadAntennas() []BadAntennaRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BadAntennaRow(nil), r.badAntennas...)
}

// Flags returns a copy of the flag rows.
func (r *Report) Flags() []FlagRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FlagRow(nil), r.flags...)
}

// Schedule returns a copy of the self-calibration rows.
func (r *Report) Schedule() []ScheduleRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScheduleRow(nil), r.schedule...)
}

// FITS returns the exported image files in export order.
func (r *Report) FITS() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fits...)
}
