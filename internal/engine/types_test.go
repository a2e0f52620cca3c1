package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataHelpers(t *testing.T) {
	md := &Metadata{
		Scans:        map[string][]int{"3C48": {1, 5}, "0837-198": {2, 4, 5}},
		ChannelFreqs: []float64{651e6, 650e6, 652e6},
		Correlations: []string{"RR", "LL"},
	}
	assert.Equal(t, []int{1, 2, 4, 5}, md.ScansOf("3C48", "0837-198"))
	assert.Equal(t, 650e6, md.MinFrequency())
	assert.Equal(t, 652e6, md.MaxFrequency())
	assert.True(t, md.HasCorrelation("ll"))
	assert.Equal(t, 2, md.NumPolarizations())
	assert.Zero(t, (&Metadata{}).MinFrequency())
}

func TestFlagSummaryTotal(t *testing.T) {
	s := &FlagCounts{Fields: map[string]FieldFlags{
		"3C48":   {Flagged: 10, Total: 100},
		"TARGET": {Flagged: 30, Total: 100},
	}}
	assert.InDelta(t, 0.2, s.Total().Fraction(), 1e-12)
	assert.Zero(t, (*FlagCounts)(nil).Total().Fraction())
}

func TestFlagRequestString(t *testing.T) {
	req := FlagRequest{Mode: FlagTFCrop, Fields: []string{"TARGET"}, Antenna: "*C*&*C*", Column: ColumnCorrected}
	assert.Equal(t, "mode='tfcrop' field='TARGET' antenna='*C*&*C*' datacolumn='CORRECTED'", req.String())
}
