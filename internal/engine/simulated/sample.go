package simulated

// SampleFixture returns a band-4 observation of one flux calibrator, one phase calibrator and one
// target with two misbehaving antennas. When raw is not empty the dataset exists only after
// importing raw.
func SampleFixture(dataset, raw string) *Fixture {
	return &Fixture{Datasets: []DatasetFixture{{
		Name:   dataset,
		Raw:    raw,
		Fields: []string{"3C286", "1822-096", "TARGET"},
		Scans: map[string][]int{
			"3C286":    {1, 7},
			"1822-096": {2, 4, 6},
			"TARGET":   {3, 5},
		},
		Antennas:        []string{"C00", "C01", "C02", "C03", "S01", "E02", "W03"},
		Channels:        1024,
		MinFreqHz:       550e6,
		ChanWidthHz:     195312.5,
		Correlations:    []string{"RR", "LL"},
		SpectralWindows: 1,
		Amplitude:       1.0,
		Overrides: []AmplitudeOverride{
			{Scan: 1, Antenna: "C03", Value: 0.05},
			{Scan: 4, Antenna: "S01", Correlation: "RR", Value: 0.1},
		},
	}}}
}
