package channelplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func TestPlanBand4With1024Channels(t *testing.T) {
	plan, err := Plan(SpectralWindow{Channels: 1024, MinFreqHz: 650e6, Polarizations: 2})
	require.NoError(t, err)
	assert.Equal(t, ChannelPlan{
		Band:              "b4",
		BadAntennaCutoff:  0.2,
		FlaggingWindow:    "0:51~950",
		CalibrationWindow: "0:101~900",
		StatisticsWindow:  "0:250~300",
	}, plan)
}

func TestPlanEveryStandardCount(t *testing.T) {
	for n, want := range standardWindows {
		plan, err := Plan(SpectralWindow{Channels: n, MinFreqHz: 1100e6, Polarizations: 2})
		require.NoError(t, err, n)
		assert.Equal(t, want.flagging, plan.FlaggingWindow, n)
		assert.Equal(t, want.calibration, plan.CalibrationWindow, n)
		assert.Equal(t, want.statistics, plan.StatisticsWindow, n)
		assert.Equal(t, "L", plan.Band)
	}
}

func TestPlanBand2(t *testing.T) {
	plan, err := Plan(SpectralWindow{Channels: 4096, MinFreqHz: 120e6, Polarizations: 2})
	require.NoError(t, err)
	assert.Equal(t, "0:1000~2300;2700~3600", plan.FlaggingWindow)
	assert.Equal(t, 0.7, plan.BadAntennaCutoff)

	_, err = Plan(SpectralWindow{Channels: 1024, MinFreqHz: 120e6, Polarizations: 2})
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)
}

func TestPlanLegacySinglePol(t *testing.T) {
	plan, err := Plan(SpectralWindow{Channels: 256, MinFreqHz: 230e6, Polarizations: 1})
	require.NoError(t, err)
	assert.Equal(t, "235", plan.Band)
	assert.Equal(t, 0.5, plan.BadAntennaCutoff)
	assert.Equal(t, "0:70~220", plan.FlaggingWindow)

	plan, err = Plan(SpectralWindow{Channels: 256, MinFreqHz: 600e6, Polarizations: 1})
	require.NoError(t, err)
	assert.Equal(t, "610", plan.Band)
	assert.Equal(t, "0:100~120", plan.StatisticsWindow)

	_, err = Plan(SpectralWindow{Channels: 512, MinFreqHz: 600e6, Polarizations: 1})
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)

	_, err = Plan(SpectralWindow{Channels: 256, MinFreqHz: 1200e6, Polarizations: 1})
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)
}

func TestPlanUnsupported(t *testing.T) {
	_, err := Plan(SpectralWindow{Channels: 300, MinFreqHz: 650e6, Polarizations: 2})
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)
	assert.True(t, exception.IsFatal(err))

	_, err = Plan(SpectralWindow{Channels: 1024, MinFreqHz: 50e6, Polarizations: 2})
	assert.ErrorIs(t, err, exception.ErrUnsupportedConfiguration)
}

func TestBandsAreHalfOpen(t *testing.T) {
	for _, tc := range []struct {
		f    float64
		want string
	}{
		{1000e6, "L"},
		{999.9e6, "b4"},
		{500e6, "b4"},
		{260e6, "P"},
		{259e6, "235"},
		{210e6, "235"},
		{80e6, "b2"},
	} {
		b, err := BandOf(tc.f)
		require.NoError(t, err, tc.f)
		assert.Equal(t, tc.want, b.Name, tc.f)
	}
	for _, f := range []float64{79e6, 200e6, 205e6} {
		_, err := BandOf(f)
		assert.Error(t, err, f)
	}
}
