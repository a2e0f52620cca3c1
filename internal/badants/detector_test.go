package badants

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/engine/simulated"
	"github.com/tigerroll/capture/internal/fields"
)

func sampleRoles() fields.Roles {
	return fields.Roles{Amplitude: []string{"3C286"}, Phase: []string{"1822-096"}, Targets: []string{"TARGET"}}
}

func TestFindPropagatesToAdjacentTargetScans(t *testing.T) {
	ctx := context.Background()
	eng := simulated.New(simulated.SampleFixture("obs.ms", ""))
	md, err := eng.Metadata(ctx, "obs.ms")
	require.NoError(t, err)
	plan, err := channelplan.Plan(channelplan.WindowOf(md))
	require.NoError(t, err)

	res, err := NewDetector(eng).Find(ctx, md, sampleRoles(), plan)
	require.NoError(t, err)

	want := []string{
		"mode='manual' antenna='C03' scan='1'",
		"mode='manual' antenna='S01' scan='4'",
		"mode='manual' antenna='S01' scan='3'",
		"mode='manual' antenna='S01' scan='5'",
	}
	if diff := cmp.Diff(want, res.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"C03", "S01"}, res.BadAntennas())

	var order []int
	for _, s := range res.Scans {
		order = append(order, s.Scan)
	}
	assert.Equal(t, []int{1, 7, 2, 4, 6}, order)
	assert.InDelta(t, 0.1, res.Scans[3].Means["S01"], 1e-9)

	for _, c := range eng.CallsOf("Statistics") {
		assert.Contains(t, c.Detail, "spw=0:250~300")
	}
	assert.Len(t, eng.CallsOf("Statistics"), 5*7*2)
}

func TestFindSinglePolarization(t *testing.T) {
	ctx := context.Background()
	fx := simulated.SampleFixture("obs.ms", "")
	fx.Datasets[0].Correlations = []string{"RR"}
	fx.Datasets[0].Channels = 256
	fx.Datasets[0].MinFreqHz = 600e6
	eng := simulated.New(fx)
	md, err := eng.Metadata(ctx, "obs.ms")
	require.NoError(t, err)
	plan, err := channelplan.Plan(channelplan.WindowOf(md))
	require.NoError(t, err)
	require.Equal(t, "610", plan.Band)

	res, err := NewDetector(eng).Find(ctx, md, sampleRoles(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"C03", "S01"}, res.BadAntennas())
	assert.Len(t, eng.CallsOf("Statistics"), 5*7)
}

func TestApplyBatchesCommands(t *testing.T) {
	ctx := context.Background()
	eng := simulated.New(simulated.SampleFixture("obs.ms", ""))

	require.NoError(t, Apply(ctx, eng, "obs.ms", nil))
	assert.Empty(t, eng.CallsOf("Flag"))

	require.NoError(t, Apply(ctx, eng, "obs.ms", []string{FlagCommand([]string{"C03", "W03"}, 7)}))
	calls := eng.CallsOf("Flag")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Detail, "mode='list'")
	assert.Contains(t, calls[0].Detail, "commands=1")
	assert.Equal(t, "mode='manual' antenna='C03; W03' scan='7'", FlagCommand([]string{"C03", "W03"}, 7))
}

func TestFindBadChannels(t *testing.T) {
	freqs := make([]float64, 100)
	for i := range freqs {
		freqs[i] = 480e6 + float64(i)*1e6
	}
	md := &engine.Metadata{Dataset: "obs.ms", ChannelFreqs: freqs}

	// 487..493 MHz lie inside the 486-493.55 MHz band.
	assert.Equal(t, []string{"mode='manual' spw='0:7~13'"}, FindBadChannels(md))

	md.ChannelFreqs = []float64{1.2e9, 1.3e9}
	assert.Empty(t, FindBadChannels(md))
}
