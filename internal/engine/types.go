package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Metadata describes a dataset. It is read once per stage and passed explicitly.
type Metadata struct {
	Dataset string
	// Fields are the field names in dataset order.
	Fields []string
	// Scans maps a field name to its scan numbers.
	Scans map[string][]int
	// Antennas are listed from the first scan of the dataset.
	Antennas []string
	// ChannelFreqs are the channel frequencies of spectral window 0, in Hz.
	ChannelFreqs []float64
	// Correlations are the correlation products, e.g. RR and LL.
	Correlations    []string
	SpectralWindows int
}

// NumChannels returns the channel count of spectral window 0.
func (m *Metadata) NumChannels() int {
	return len(m.ChannelFreqs)
}

// MinFrequency returns the lowest channel frequency in Hz, or 0 without channels.
func (m *Metadata) MinFrequency() float64 {
	if len(m.ChannelFreqs) == 0 {
		return 0
	}
	lo := m.ChannelFreqs[0]
	for _, f := range m.ChannelFreqs[1:] {
		if f < lo {
			lo = f
		}
	}
	return lo
}

// MaxFrequency returns the highest channel frequency in Hz, or 0 without channels.
func (m *Metadata) MaxFrequency() float64 {
	hi := 0.0
	for _, f := range m.ChannelFreqs {
		if f > hi {
			hi = f
		}
	}
	return hi
}

// NumPolarizations returns the number of correlation products.
func (m *Metadata) NumPolarizations() int {
	return len(m.Correlations)
}

// HasCorrelation reports whether corr is present, ignoring case.
func (m *Metadata) HasCorrelation(corr string) bool {
	for _, c := range m.Correlations {
		if strings.EqualFold(c, corr) {
			return true
		}
	}
	return false
}

// ScansOf returns the sorted, de-duplicated scans of the given fields.
func (m *Metadata) ScansOf(fields ...string) []int {
	seen := map[int]bool{}
	var out []int
	for _, f := range fields {
		for _, s := range m.Scans[f] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Ints(out)
	return out
}

// Column selects a visibility data column.
type Column string

const (
	ColumnData      Column = "DATA"
	ColumnCorrected Column = "CORRECTED"
	ColumnResidual  Column = "RESIDUAL_DATA"
	// ColumnAll carries every data column through a transform.
	ColumnAll Column = "ALL"
)

// FlagMode is a flagging algorithm.
type FlagMode string

const (
	FlagManual  FlagMode = "manual"
	FlagQuack   FlagMode = "quack"
	FlagClip    FlagMode = "clip"
	FlagTFCrop  FlagMode = "tfcrop"
	FlagRFlag   FlagMode = "rflag"
	FlagExtend  FlagMode = "extend"
	FlagSummary FlagMode = "summary"
	// FlagList applies Commands in one batched call.
	FlagList FlagMode = "list"
)

// FlagRequest is one flagging command. Zero values mean "engine default".
type FlagRequest struct {
	Mode   FlagMode
	Fields []string
	Spw    string
	// Antenna is a baseline selection, e.g. "*C*&*C*" for core-core baselines.
	Antenna string
	Scan    string
	Column  Column

	QuackInterval float64
	QuackMode     string

	ClipMin, ClipMax float64

	// TimeCutoff and FreqCutoff are the tfcrop cutoffs.
	TimeCutoff, FreqCutoff float64
	// TimeFit and FreqFit are the fits along each axis: "line" or "poly".
	TimeFit, FreqFit string

	// TimeDevScale and FreqDevScale are the rflag deviation scales.
	TimeDevScale, FreqDevScale float64

	// GrowTime and GrowFreq are the extend percentages.
	GrowTime, GrowFreq float64
	ExtendPols         bool

	// Commands are the command strings of a list-mode call.
	Commands []string
}

// String renders the request in the engine's command syntax for logs.
func (r FlagRequest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode='%s'", r.Mode)
	if len(r.Fields) > 0 {
		fmt.Fprintf(&b, " field='%s'", strings.Join(r.Fields, ","))
	}
	if r.Antenna != "" {
		fmt.Fprintf(&b, " antenna='%s'", r.Antenna)
	}
	if r.Spw != "" {
		fmt.Fprintf(&b, " spw='%s'", r.Spw)
	}
	if r.Column != "" {
		fmt.Fprintf(&b, " datacolumn='%s'", r.Column)
	}
	if r.Mode == FlagList {
		fmt.Fprintf(&b, " commands=%d", len(r.Commands))
	}
	return b.String()
}

// FieldFlags is the flag count of one field.
type FieldFlags struct {
	Flagged float64
	Total   float64
}

// Fraction returns the flagged fraction, or 0 for an empty selection.
func (f FieldFlags) Fraction() float64 {
	if f.Total == 0 {
		return 0
	}
	return f.Flagged / f.Total
}

// FlagCounts is the outcome of a summary-mode flag call.
type FlagCounts struct {
	Fields map[string]FieldFlags
}

// Total returns the flag count summed over all fields.
func (s *FlagCounts) Total() FieldFlags {
	var t FieldFlags
	if s == nil {
		return t
	}
	for _, f := range s.Fields {
		t.Flagged += f.Flagged
		t.Total += f.Total
	}
	return t
}

// CalibrationTable is a named calibration solution.
type CalibrationTable struct {
	Name string
}

// SolveRequest parameterises a delay, gain or bandpass solve.
type SolveRequest struct {
	Table   string
	Fields  []string
	Spw     string
	UVRange string
	Solint  string
	RefAnt  string
	// GainType is "G" or "K".
	GainType string
	// CalMode is "p", "a" or "ap".
	CalMode  string
	MinSNR   float64
	SolMode  string
	SolNorm  bool
	FillGaps int
	// GainTables are applied on the fly while solving.
	GainTables []string
	// Append adds solutions to an existing table instead of replacing it.
	Append bool
	// PriorTable is the table this solution refines, recorded for provenance only.
	PriorTable string
}

// FluxScaleRequest bootstraps the flux scale of transfer calibrators from the reference.
type FluxScaleRequest struct {
	Table     string
	Input     string
	Reference string
	Transfer  []string
}

// ApplyRequest applies calibration tables to fields.
type ApplyRequest struct {
	Fields     []string
	Spw        string
	GainTables []string
	GainField  []string
	Interp     []string
	CalWT      bool
	ApplyMode  string
	Parang     bool
}

// ImageRequest parameterises imaging.
type ImageRequest struct {
	Name  string
	Field string
	// Spw restricts imaging to a selection; empty images every spectral window.
	Spw         string
	Cell        string
	ImSize      int
	Robust      float64
	NTerms      int
	WProjPlanes int
	Niter       int
	Threshold   string
}

// Image is an imaging output.
type Image struct {
	// Name is the image base name.
	Name string
	// Product is the restored image product exported to FITS.
	Product string
	Niter   int
}

// Dirty reports whether the image was made without deconvolution.
func (i Image) Dirty() bool {
	return i.Niter == 0
}

// TransformRequest splits or averages a dataset.
type TransformRequest struct {
	Output  string
	Fields  []string
	Spw     string
	Column  Column
	ChanBin int
}

// StatisticsRequest selects the visibilities whose mean amplitude is computed.
// Flags are ignored.
type StatisticsRequest struct {
	Field       string
	Spw         string
	Antenna     string
	Correlation string
	Scan        int
	Column      Column
}
