package simulated

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/capture/internal/engine"
)

// Fixture describes the observation the simulated engine starts from.
type Fixture struct {
	Datasets []DatasetFixture `yaml:"datasets"`
}

// DatasetFixture is one dataset of a fixture. A dataset with Raw set is created only by
// importing that raw file.
type DatasetFixture struct {
	Name            string           `yaml:"name"`
	Raw             string           `yaml:"raw"`
	Fields          []string         `yaml:"fields"`
	Scans           map[string][]int `yaml:"scans"`
	Antennas        []string         `yaml:"antennas"`
	Channels        int              `yaml:"channels"`
	MinFreqHz       float64          `yaml:"min_freq_hz"`
	ChanWidthHz     float64          `yaml:"chan_width_hz"`
	Correlations    []string         `yaml:"correlations"`
	SpectralWindows int              `yaml:"spectral_windows"`
	// Amplitude is the mean visibility amplitude of every antenna not overridden.
	Amplitude float64             `yaml:"amplitude"`
	Overrides []AmplitudeOverride `yaml:"overrides"`
}

// AmplitudeOverride sets the amplitude of one antenna. Scan 0 and an empty correlation match all.
type AmplitudeOverride struct {
	Scan        int     `yaml:"scan"`
	Antenna     string  `yaml:"antenna"`
	Correlation string  `yaml:"correlation"`
	Value       float64 `yaml:"value"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulated engine fixture '%s': %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse simulated engine fixture: %w", err)
	}
	for i, d := range f.Datasets {
		if d.Name == "" {
			return nil, fmt.Errorf("fixture dataset #%d has no name", i)
		}
		if d.Channels <= 0 {
			return nil, fmt.Errorf("fixture dataset '%s' needs a positive channel count", d.Name)
		}
	}
	return &f, nil
}

func (d DatasetFixture) metadata(name string) *engine.Metadata {
	freqs := make([]float64, d.Channels)
	for i := range freqs {
		freqs[i] = d.MinFreqHz + float64(i)*d.ChanWidthHz
	}
	scans := make(map[string][]int, len(d.Scans))
	for f, s := range d.Scans {
		scans[f] = append([]int(nil), s...)
	}
	spws := d.SpectralWindows
	if spws == 0 {
		spws = 1
	}
	return &engine.Metadata{
		Dataset:         name,
		Fields:          append([]string(nil), d.Fields...),
		Scans:           scans,
		Antennas:        append([]string(nil), d.Antennas...),
		ChannelFreqs:    freqs,
		Correlations:    append([]string(nil), d.Correlations...),
		SpectralWindows: spws,
	}
}
