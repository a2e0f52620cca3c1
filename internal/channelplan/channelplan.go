// Package channelplan derives the spectral windows used for flagging, calibration and antenna
// statistics from the channel count and frequency coverage of a dataset, together with the
// amplitude cutoff below which an antenna is considered bad.
package channelplan

import (
	"fmt"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

const module = "channelplan"

// SpectralWindow describes the spectral setup of a dataset.
type SpectralWindow struct {
	Channels int
	// MinFreqHz is the lowest channel frequency.
	MinFreqHz     float64
	Polarizations int
}

// WindowOf reads the spectral window of a dataset's metadata.
func WindowOf(md *engine.Metadata) SpectralWindow {
	return SpectralWindow{
		Channels:      md.NumChannels(),
		MinFreqHz:     md.MinFrequency(),
		Polarizations: md.NumPolarizations(),
	}
}

// ChannelPlan is the derived channel selection of a dataset. It is never persisted.
type ChannelPlan struct {
	Band             string
	BadAntennaCutoff float64
	// FlaggingWindow is used for flux models, delay, bandpass and bad-channel work.
	FlaggingWindow string
	// CalibrationWindow is used for per-calibrator gain solves and the target split.
	CalibrationWindow string
	// StatisticsWindow is used to measure antenna amplitudes.
	StatisticsWindow string
}

type windows struct {
	statistics, flagging, calibration string
}

var standardWindows = map[int]windows{
	128:   {"0:50~70", "0:5~115", "0:11~115"},
	256:   {"0:150~160", "0:11~240", "0:21~230"},
	512:   {"0:200~240", "0:21~500", "0:41~490"},
	1024:  {"0:250~300", "0:51~950", "0:101~900"},
	2048:  {"0:500~600", "0:101~1900", "0:201~1800"},
	4096:  {"0:1000~1200", "0:41~4050", "0:201~3600"},
	8192:  {"0:2000~3000", "0:500~7800", "0:1000~7000"},
	16384: {"0:4000~6000", "0:1000~14500", "0:2000~13500"},
}

var band2Windows = map[int]windows{
	2048: {"0:1200~2200", "0:1200~2200", "0:1200~2200"},
	4096: {"0:1400~1600;3000~3200", "0:1000~2300;2700~3600", "0:1151~2250;2801~3500"},
}

// Single-polarization data from the dual-frequency mode of the legacy correlator.
var (
	legacy235 = windows{"0:150~160", "0:70~220", "0:91~190"}
	legacy610 = windows{"0:100~120", "0:11~240", "0:21~230"}
)

// Band is a named frequency range [MinHz, MaxHz) with its bad-antenna cutoff.
type Band struct {
	Name   string
	MinHz  float64
	MaxHz  float64
	Cutoff float64
}

// Bands are mutually exclusive. MaxHz 0 means unbounded.
var Bands = []Band{
	{Name: "L", MinHz: 1000e6, Cutoff: 0.2},
	{Name: "b4", MinHz: 500e6, MaxHz: 1000e6, Cutoff: 0.2},
	{Name: "P", MinHz: 260e6, MaxHz: 500e6, Cutoff: 0.3},
	{Name: "235", MinHz: 210e6, MaxHz: 260e6, Cutoff: 0.5},
	{Name: "b2", MinHz: 80e6, MaxHz: 200e6, Cutoff: 0.7},
}

func (b Band) contains(f float64) bool {
	return f >= b.MinHz && (b.MaxHz == 0 || f < b.MaxHz)
}

// BandOf returns the band containing fmin.
func BandOf(fmin float64) (Band, error) {
	for _, b := range Bands {
		if b.contains(fmin) {
			return b, nil
		}
	}
	return Band{}, exception.NewUnsupportedConfigurationError(module,
		"frequency %.1f MHz is not in any GMRT band", fmin/1e6)
}

// Plan computes the channel plan of w.
func Plan(w SpectralWindow) (ChannelPlan, error) {
	if w.Polarizations == 1 {
		return planSinglePol(w)
	}
	band, err := BandOf(w.MinFreqHz)
	if err != nil {
		return ChannelPlan{}, err
	}
	table := standardWindows
	if band.Name == "b2" {
		table = band2Windows
	}
	win, ok := table[w.Channels]
	if !ok {
		return ChannelPlan{}, exception.NewUnsupportedConfigurationError(module,
			"%d channels are not supported in band %s", w.Channels, band.Name)
	}
	return newPlan(band.Name, band.Cutoff, win), nil
}

func planSinglePol(w SpectralWindow) (ChannelPlan, error) {
	var (
		name   string
		cutoff float64
		win    windows
	)
	switch {
	case w.MinFreqHz > 200e6 && w.MinFreqHz < 300e6:
		name, cutoff, win = "235", 0.5, legacy235
	case w.MinFreqHz > 590e6 && w.MinFreqHz < 700e6:
		name, cutoff, win = "610", 0.2, legacy610
	default:
		return ChannelPlan{}, exception.NewUnsupportedConfigurationError(module,
			"single polarization data at %.1f MHz is most likely from the hardware correlator and is not supported",
			w.MinFreqHz/1e6)
	}
	if w.Channels != 256 {
		return ChannelPlan{}, exception.NewUnsupportedConfigurationError(module,
			"legacy %s MHz dual-frequency data must have 256 channels, got %d", name, w.Channels)
	}
	return newPlan(name, cutoff, win), nil
}

func newPlan(band string, cutoff float64, w windows) ChannelPlan {
	return ChannelPlan{
		Band:              band,
		BadAntennaCutoff:  cutoff,
		FlaggingWindow:    w.flagging,
		CalibrationWindow: w.calibration,
		StatisticsWindow:  w.statistics,
	}
}

// String renders the plan for logs.
func (p ChannelPlan) String() string {
	return fmt.Sprintf("band=%s cutoff=%g flag=%s cal=%s stats=%s",
		p.Band, p.BadAntennaCutoff, p.FlaggingWindow, p.CalibrationWindow, p.StatisticsWindow)
}
