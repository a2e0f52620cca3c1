package selfcal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/engine/simulated"
	"github.com/tigerroll/capture/internal/flagging"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

const input = "avg-TARGETsplit.ms"

type iterationSpy struct {
	metrics.NoOpMetricRecorder
	modes []string
}

func (s *iterationSpy) RecordSelfCalIteration(_ context.Context, _ string, _, _ int, mode string) {
	s.modes = append(s.modes, mode)
}

func splitFixture() *simulated.Fixture {
	return &simulated.Fixture{Datasets: []simulated.DatasetFixture{{
		Name:         input,
		Fields:       []string{"TARGET"},
		Scans:        map[string][]int{"TARGET": {3, 5}},
		Antennas:     []string{"C00", "C01", "S01", "E02"},
		Channels:     80,
		MinFreqHz:    550e6,
		ChanWidthHz:  1953125,
		Correlations: []string{"RR", "LL"},
		Amplitude:    1,
	}}}
}

func newLoop(eng *simulated.Engine, cfg config.SelfCalConfig, recorder metrics.MetricRecorder) *Loop {
	flagger := flagging.NewFlagger(eng, nil, config.FlaggingConfig{ClipResid: config.ClipRange{0, 10}}, true)
	imager := NewImager(eng, config.ImagingConfig{CellSize: []string{"1arcsec"}, ImSizePix: 4096, NTerms: 1})
	return NewLoop(eng, flagger, imager, cfg, config.CalibrationConfig{RefAnt: "C00", UVRangeSelfCal: ">0.5klambda"}, recorder)
}

func details(eng *simulated.Engine, op string) []string {
	var out []string
	for _, c := range eng.CallsOf(op) {
		out = append(out, c.Detail)
	}
	return out
}

func TestLoopTwoIterations(t *testing.T) {
	eng := simulated.New(splitFixture())
	spy := &iterationSpy{}
	res, err := newLoop(eng, twoLoops(), spy).Run(context.Background(), input, false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"TARGET-selfcalimg0 niter=100 threshold=10mJy spw=*",
		"TARGET-selfcalimg1 niter=200 threshold=5mJy spw=*",
		"TARGET-selfcalimg2 niter=400 threshold=3.33mJy spw=*",
	}, details(eng, "Image"))
	assert.Equal(t, []string{"TARGETp0.GT", "TARGETap1.GT"}, details(eng, "SolveGain"))
	assert.Equal(t, []string{"p", "ap", "ap"}, spy.modes)

	assert.Len(t, res.Images(), 3)
	assert.Equal(t, [][]string{{"TARGETp0.GT"}, {"TARGETap1.GT"}}, res.Tables())
	assert.Equal(t, "TARGET-selfcal1.ms", res.Final().Dataset)
	assert.Equal(t, "TARGET-selfcalimg2.fits", res.Final().FITS)
	assert.Len(t, eng.CallsOf("Flag"), 9)
}

func TestLoopKeepsLastTwoGenerations(t *testing.T) {
	ctx := context.Background()
	cfg := twoLoops()
	cfg.Loops = 3
	cfg.Solints = []string{"8min", "4min", "2min"}
	eng := simulated.New(splitFixture())
	res, err := newLoop(eng, cfg, nil).Run(ctx, input, false)
	require.NoError(t, err)

	for name, live := range map[string]bool{
		input:                true,
		"TARGET-selfcal0.ms": false,
		"TARGET-selfcal1.ms": true,
		"TARGET-selfcal2.ms": true,
	} {
		ok, err := eng.Exists(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, live, ok, name)
	}
	assert.True(t, res.Generations[1].Dropped)
	assert.False(t, res.Generations[0].Dropped)
	assert.Len(t, res.Tables(), 3)
}

func TestLoopTerminalDirty(t *testing.T) {
	cfg := twoLoops()
	cfg.Loops = 0
	eng := simulated.New(splitFixture())
	res, err := newLoop(eng, cfg, nil).Run(context.Background(), input, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"TARGET-dirty-img niter=0 threshold=10mJy spw=*"}, details(eng, "Image"))
	assert.Empty(t, eng.CallsOf("SolveGain"))
	assert.Empty(t, eng.CallsOf("Flag"))
	assert.Equal(t, input, res.Final().Dataset)
}

func TestLoopSubbands(t *testing.T) {
	ctx := context.Background()
	cfg := twoLoops()
	cfg.SubbandChan = 30
	eng := simulated.New(splitFixture())
	res, err := newLoop(eng, cfg, nil).Run(ctx, input, true)
	require.NoError(t, err)

	require.Len(t, res.Windows, 3)
	assert.Equal(t, []string{"TARGETp0sb0.GT", "TARGETp0sb1.GT", "TARGETp0sb2.GT"}, res.Tables()[0])

	md, err := eng.Metadata(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 3, md.SpectralWindows)
	assert.Equal(t, 80, md.NumChannels())

	names := eng.Names()
	assert.Contains(t, names, "old"+input)
	assert.NotContains(t, names, "msimg0.ms")
}

func TestLoopSubbandsImageEveryWindow(t *testing.T) {
	cfg := twoLoops()
	cfg.SubbandChan = 30
	eng := simulated.New(splitFixture())
	_, err := newLoop(eng, cfg, nil).Run(context.Background(), input, true)
	require.NoError(t, err)

	images := eng.CallsOf("Image")
	require.Len(t, images, 3)
	for _, c := range images {
		assert.Contains(t, c.Detail, "spw=*", c.Dataset)
	}
	assert.Equal(t, []string{input, "TARGET-selfcal0.ms", "TARGET-selfcal1.ms"},
		[]string{images[0].Dataset, images[1].Dataset, images[2].Dataset})
	assert.Equal(t, []string{"TARGETp0sb0.GT", "TARGETp0sb1.GT", "TARGETp0sb2.GT"}, details(eng, "Apply")[:3])
}

func TestLoopNarrowSubband(t *testing.T) {
	cfg := twoLoops()
	cfg.SubbandChan = 100
	eng := simulated.New(splitFixture())
	res, err := newLoop(eng, cfg, nil).Run(context.Background(), input, true)
	require.NoError(t, err)
	assert.Equal(t, []Window{{Spw: "0", Suffix: "sb0"}}, res.Windows)
	assert.Empty(t, eng.CallsOf("Concat"))
}

func TestLoopMissingInput(t *testing.T) {
	eng := simulated.New(splitFixture())
	_, err := newLoop(eng, twoLoops(), nil).Run(context.Background(), "nope.ms", false)
	assert.ErrorIs(t, err, exception.ErrMissingInput)
}
