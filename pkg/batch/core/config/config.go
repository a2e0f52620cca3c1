// Package config provides the configuration model of the capture pipeline and its loader.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	dbconfig "github.com/tigerroll/capture/pkg/batch/adapter/database/config"
	storageconfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// File is an optional path receiving the JSON run log in addition to the console.
	File string `yaml:"file"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Kolkata").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// StagesConfig holds the boolean stage-enable flags.
type StagesConfig struct {
	FromFITS         bool `yaml:"from_fits"`
	FromMultiSrcMS   bool `yaml:"from_multisrc_ms"`
	FindBadAnts      bool `yaml:"find_bad_ants"`
	FlagBadAnts      bool `yaml:"flag_bad_ants"`
	FindBadChans     bool `yaml:"find_bad_chans"`
	FlagBadFreq      bool `yaml:"flag_bad_freq"`
	FlagInit         bool `yaml:"flag_init"`
	DoInitCal        bool `yaml:"do_init_cal"`
	DoFlag           bool `yaml:"do_flag"`
	RedoCal          bool `yaml:"redo_cal"`
	DoSplit          bool `yaml:"do_split"`
	FlagSplitFile    bool `yaml:"flag_split_file"`
	DoSplitAvg       bool `yaml:"do_split_avg"`
	DoFlagAvg        bool `yaml:"do_flag_avg"`
	MakeDirty        bool `yaml:"make_dirty"`
	DoSelfCal        bool `yaml:"do_selfcal"`
	DoSubbandSelfCal bool `yaml:"do_subband_selfcal"`
	// Target enables target-role flagging and calibration application.
	Target  bool `yaml:"target"`
	Publish bool `yaml:"publish"`
}

// Normalize applies the implications between flags: flagging bad antennas or channels
// requires finding them, and sub-band self-calibration replaces the plain loop.
func (s *StagesConfig) Normalize() {
	if s.FlagBadAnts {
		s.FindBadAnts = true
	}
	if s.FlagBadFreq {
		s.FindBadChans = true
	}
	if s.DoSubbandSelfCal {
		s.DoSelfCal = false
	}
}

// StageFlagKeys lists the yaml keys accepted by Enabled.
var StageFlagKeys = []string{
	"from_fits", "from_multisrc_ms", "find_bad_ants", "flag_bad_ants", "find_bad_chans",
	"flag_bad_freq", "flag_init", "do_init_cal", "do_flag", "redo_cal", "do_split",
	"flag_split_file", "do_split_avg", "do_flag_avg", "make_dirty", "do_selfcal",
	"do_subband_selfcal", "target", "publish",
}

// IsStageFlag reports whether key names a StagesConfig flag.
func IsStageFlag(key string) bool {
	for _, k := range StageFlagKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Enabled looks a flag up by its yaml key. Unknown keys report false.
func (s StagesConfig) Enabled(key string) bool {
	switch key {
	case "from_fits":
		return s.FromFITS
	case "from_multisrc_ms":
		return s.FromMultiSrcMS
	case "find_bad_ants":
		return s.FindBadAnts
	case "flag_bad_ants":
		return s.FlagBadAnts
	case "find_bad_chans":
		return s.FindBadChans
	case "flag_bad_freq":
		return s.FlagBadFreq
	case "flag_init":
		return s.FlagInit
	case "do_init_cal":
		return s.DoInitCal
	case "do_flag":
		return s.DoFlag
	case "redo_cal":
		return s.RedoCal
	case "do_split":
		return s.DoSplit
	case "flag_split_file":
		return s.FlagSplitFile
	case "do_split_avg":
		return s.DoSplitAvg
	case "do_flag_avg":
		return s.DoFlagAvg
	case "make_dirty":
		return s.MakeDirty
	case "do_selfcal":
		return s.DoSelfCal
	case "do_subband_selfcal":
		return s.DoSubbandSelfCal
	case "target":
		return s.Target
	case "publish":
		return s.Publish
	default:
		return false
	}
}

// InputsConfig names the datasets and files the pipeline reads.
type InputsConfig struct {
	FITSFile          string `yaml:"fits_file"`
	MSFile            string `yaml:"ms_file"`
	SplitFile         string `yaml:"split_file"`
	SplitAvgFile      string `yaml:"split_avg_file"`
	CalibratorCatalog string `yaml:"calibrator_catalog"`
}

// ClipRange is an amplitude clip range written as [min, max].
type ClipRange [2]float64

// UnmarshalYAML accepts a two-element sequence or a "min,max" string.
func (r *ClipRange) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return r.parse(node.Value)
	}
	var vals []float64
	if err := node.Decode(&vals); err != nil {
		return err
	}
	if len(vals) != 2 {
		return fmt.Errorf("clip range needs exactly 2 values, got %d", len(vals))
	}
	r[0], r[1] = vals[0], vals[1]
	return nil
}

func (r *ClipRange) parse(s string) error {
	parts := strings.Split(strings.Trim(s, "[] "), ",")
	if len(parts) != 2 {
		return fmt.Errorf("clip range %q needs exactly 2 values", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("clip range %q: %w", s, err)
		}
		r[i] = v
	}
	return nil
}

// Min returns the lower bound.
func (r ClipRange) Min() float64 { return r[0] }

// Max returns the upper bound.
func (r ClipRange) Max() float64 { return r[1] }

// FlaggingConfig holds the flagging thresholds.
type FlaggingConfig struct {
	QuackInterval float64   `yaml:"quack_interval"`
	ClipFluxCal   ClipRange `yaml:"clip_flux_cal"`
	ClipPhaseCal  ClipRange `yaml:"clip_phase_cal"`
	ClipTarget    ClipRange `yaml:"clip_target"`
	ClipResid     ClipRange `yaml:"clip_resid"`
}

// CalibrationConfig holds the solver parameters shared by calibration and self-calibration.
type CalibrationConfig struct {
	RefAnt         string `yaml:"ref_ant"`
	UVRangeCal     string `yaml:"uvrange_cal"`
	UVRangeSelfCal string `yaml:"uvrange_selfcal"`
}

// ImagingConfig holds the imaging parameters.
type ImagingConfig struct {
	CellSize    []string `yaml:"cell_size"`
	ImSizePix   int      `yaml:"imsize_pix"`
	Robust      float64  `yaml:"robust"`
	NTerms      int      `yaml:"nterms"`
	WProjPlanes int      `yaml:"wproj_planes"`
}

// Cell returns the first configured cell size, or "" when none is set.
func (c ImagingConfig) Cell() string {
	if len(c.CellSize) == 0 {
		return ""
	}
	return c.CellSize[0]
}

// SelfCalConfig holds the self-calibration schedule parameters.
type SelfCalConfig struct {
	Loops           int      `yaml:"loops"`
	PhaseLoops      int      `yaml:"phase_loops"`
	MJyThreshold    float64  `yaml:"mjy_threshold"`
	NiterStart      int      `yaml:"niter_start"`
	Solints         []string `yaml:"solints"`
	SubbandChan     int      `yaml:"subband_chan"`
	ChanAvg         int      `yaml:"chan_avg"`
	DirtyFirst      bool     `yaml:"dirty_first"`
	KeepGenerations int      `yaml:"keep_generations"`
}

// CasaConfig configures the CASA subprocess engine.
type CasaConfig struct {
	Executable     string   `yaml:"executable"`
	WorkDir        string   `yaml:"work_dir"`
	TimeoutMinutes int      `yaml:"timeout"`
	Args           []string `yaml:"args"`
}

// SimulatedConfig configures the in-process simulated engine.
type SimulatedConfig struct {
	// Fixture is a YAML file describing the datasets the simulated engine starts with.
	Fixture string `yaml:"fixture"`
}

// EngineConfig selects and configures the visibility processing engine.
type EngineConfig struct {
	Type      string          `yaml:"type"`
	Casa      CasaConfig      `yaml:"casa"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

// MetricsConfig selects the metrics and tracing backend.
type MetricsConfig struct {
	Backend      string `yaml:"backend"`       // "none", "prometheus" or "otel".
	Textfile     string `yaml:"textfile"`      // Prometheus textfile written at the end of the run.
	OTLPEndpoint string `yaml:"otlp_endpoint"` // host:port of the OTLP collector.
	OTLPProtocol string `yaml:"otlp_protocol"` // "grpc" or "http".
	ServiceName  string `yaml:"service_name"`
}

// CaptureConfig holds all configuration under the "capture" top-level key.
type CaptureConfig struct {
	System      SystemConfig                `yaml:"system"`
	Stages      StagesConfig                `yaml:"stages"`
	Inputs      InputsConfig                `yaml:"inputs"`
	Flagging    FlaggingConfig              `yaml:"flagging"`
	Calibration CalibrationConfig           `yaml:"calibration"`
	Imaging     ImagingConfig               `yaml:"imaging"`
	SelfCal     SelfCalConfig               `yaml:"selfcal"`
	Engine      EngineConfig                `yaml:"engine"`
	Storage     storageconfig.StorageConfig `yaml:"storage"`
	Database    dbconfig.DatabaseConfig     `yaml:"database"`
	Metrics     MetricsConfig               `yaml:"metrics"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	// EmbeddedConfig holds the raw bytes the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
// The defaults follow the values the uGMRT pipeline ships with.
func NewConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Stages: StagesConfig{Target: true},
			Flagging: FlaggingConfig{
				QuackInterval: 10.0,
				ClipFluxCal:   ClipRange{0, 50},
				ClipPhaseCal:  ClipRange{0, 50},
				ClipTarget:    ClipRange{0, 20},
				ClipResid:     ClipRange{0, 10},
			},
			Calibration: CalibrationConfig{
				RefAnt:     "C00",
				UVRangeCal: "",
			},
			Imaging: ImagingConfig{
				CellSize:    []string{"1.0arcsec"},
				ImSizePix:   4096,
				Robust:      0,
				NTerms:      1,
				WProjPlanes: -1,
			},
			SelfCal: SelfCalConfig{
				Loops:           4,
				PhaseLoops:      3,
				MJyThreshold:    1,
				NiterStart:      1000,
				Solints:         []string{"8min", "4min", "2min", "1min"},
				SubbandChan:     256,
				ChanAvg:         10,
				KeepGenerations: 2,
			},
			Engine: EngineConfig{
				Type: "casa",
				Casa: CasaConfig{
					Executable:     "casa",
					WorkDir:        ".",
					TimeoutMinutes: 0,
					Args:           []string{"--nogui", "--nologger", "--agg"},
				},
			},
			Storage:  storageconfig.StorageConfig{Type: "local", BaseDir: "products"},
			Database: dbconfig.DatabaseConfig{Type: "memory"},
			Metrics:  MetricsConfig{Backend: "none", OTLPProtocol: "grpc", ServiceName: "capture"},
		},
	}
}

// Fingerprint returns a stable hash of the effective configuration.
// Runs with the same fingerprint were configured identically.
func (c *Config) Fingerprint() string {
	data, err := yaml.Marshal(c.Capture)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
