package calibration

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine/simulated"
	"github.com/tigerroll/capture/internal/fields"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

var cfg = config.CalibrationConfig{RefAnt: "C00", UVRangeCal: ">1klambda"}

func setup(t *testing.T) (*simulated.Engine, channelplan.ChannelPlan) {
	t.Helper()
	eng := simulated.New(simulated.SampleFixture("obs.ms", ""))
	md, err := eng.Metadata(context.Background(), "obs.ms")
	require.NoError(t, err)
	plan, err := channelplan.Plan(channelplan.WindowOf(md))
	require.NoError(t, err)
	return eng, plan
}

func sampleRoles() fields.Roles {
	return fields.Roles{Amplitude: []string{"3C286"}, Phase: []string{"1822-096"}, Targets: []string{"TARGET"}}
}

func TestRunIsRepeatable(t *testing.T) {
	eng, plan := setup(t)
	stage := NewStage(eng, cfg, true)

	first, err := stage.Run(context.Background(), "obs.ms", sampleRoles(), plan, SuffixInitial)
	require.NoError(t, err)
	second, err := stage.Run(context.Background(), "obs.ms", sampleRoles(), plan, SuffixInitial)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	want := []string{"obs.ms.fluxscale", "obs.ms.K1", "obs.ms.B1"}
	if diff := cmp.Diff(want, first.Applied); diff != "" {
		t.Errorf("applied tables mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "3C286", first.FluxReference)

	var tables []string
	for _, n := range eng.Names() {
		if n != "obs.ms" {
			tables = append(tables, n)
		}
	}
	assert.ElementsMatch(t, TablesFor("obs.ms", "").All(), tables)
	assert.Len(t, eng.CallsOf("Apply"), 6)
}

func TestRedoUsesSuffix(t *testing.T) {
	eng, plan := setup(t)
	res, err := NewStage(eng, cfg, true).Run(context.Background(), "obs.ms", sampleRoles(), plan, SuffixRedo)
	require.NoError(t, err)
	assert.Equal(t, "obs.ms.K1recal", res.Tables.Delay)
	assert.Equal(t, "obs.ms.fluxscalerecal", res.Applied[0])
}

func TestGainSolvesAppendPerCalibrator(t *testing.T) {
	eng, plan := setup(t)
	_, err := NewStage(eng, cfg, true).Run(context.Background(), "obs.ms", sampleRoles(), plan, SuffixInitial)
	require.NoError(t, err)

	var gains []string
	for _, c := range eng.CallsOf("SolveGain") {
		gains = append(gains, c.Detail)
	}
	assert.Equal(t, []string{"obs.ms.AP.G0", "obs.ms.AP.G", "obs.ms.AP.G"}, gains)
}

func TestWithoutPhaseCalibrators(t *testing.T) {
	eng, plan := setup(t)
	roles := sampleRoles()
	roles.Phase = nil
	res, err := NewStage(eng, cfg, true).Run(context.Background(), "obs.ms", roles, plan, SuffixInitial)
	require.NoError(t, err)
	assert.Empty(t, res.FluxReference)
	assert.Equal(t, "obs.ms.AP.G", res.Applied[0])
	assert.Empty(t, eng.CallsOf("SolveFluxScale"))
	assert.Len(t, eng.CallsOf("Apply"), 2)
}

func TestWithoutAmplitudeCalibrators(t *testing.T) {
	eng, plan := setup(t)
	roles := sampleRoles()
	roles.Amplitude = nil
	_, err := NewStage(eng, cfg, true).Run(context.Background(), "obs.ms", roles, plan, SuffixInitial)
	require.Error(t, err)
	assert.True(t, exception.IsWarning(err))
	assert.ErrorIs(t, err, exception.ErrEmptyRoleSet)
	assert.Empty(t, eng.Calls())
}

func TestMissingDataset(t *testing.T) {
	eng, plan := setup(t)
	_, err := NewStage(eng, cfg, false).Run(context.Background(), "nope.ms", sampleRoles(), plan, SuffixInitial)
	assert.ErrorIs(t, err, exception.ErrMissingInput)
}

func TestTargetsDisabled(t *testing.T) {
	eng, plan := setup(t)
	_, err := NewStage(eng, cfg, false).Run(context.Background(), "obs.ms", sampleRoles(), plan, SuffixInitial)
	require.NoError(t, err)
	assert.Len(t, eng.CallsOf("Apply"), 2)
}

func TestFluxReference(t *testing.T) {
	assert.Equal(t, "3C286", FluxReference([]string{"3C48", "3C286"}))
	assert.Equal(t, "3C147", FluxReference([]string{"3C48", "3C147"}))
	assert.Equal(t, "3C48", FluxReference([]string{"3C48"}))
	assert.Empty(t, FluxReference(nil))
}
