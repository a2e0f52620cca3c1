package flagging

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/engine/simulated"
	"github.com/tigerroll/capture/internal/fields"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	metrics "github.com/tigerroll/capture/pkg/batch/core/metrics"
)

type fractionSpy struct {
	metrics.NoOpMetricRecorder
	fractions map[string]float64
}

func (s *fractionSpy) RecordFlagFraction(_ context.Context, phase, field string, fraction float64) {
	s.fractions[phase+"/"+field] = fraction
}

func testConfig() config.FlaggingConfig {
	return config.FlaggingConfig{
		QuackInterval: 10,
		ClipFluxCal:   config.ClipRange{0, 50},
		ClipPhaseCal:  config.ClipRange{0, 80},
		ClipTarget:    config.ClipRange{0, 20},
		ClipResid:     config.ClipRange{0, 10},
	}
}

func setup(t *testing.T) (*simulated.Engine, Input) {
	t.Helper()
	eng := simulated.New(simulated.SampleFixture("obs.ms", ""))
	md, err := eng.Metadata(context.Background(), "obs.ms")
	require.NoError(t, err)
	plan, err := channelplan.Plan(channelplan.WindowOf(md))
	require.NoError(t, err)
	return eng, Input{
		Metadata: md,
		Roles:    fields.Roles{Amplitude: []string{"3C286"}, Phase: []string{"1822-096"}, Targets: []string{"TARGET"}},
		Plan:     &plan,
	}
}

func modes(calls []simulated.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, strings.SplitN(c.Detail, "'", 3)[1])
	}
	return out
}

func TestInitialPhaseOrder(t *testing.T) {
	eng, in := setup(t)
	spy := &fractionSpy{fractions: map[string]float64{}}
	f := NewFlagger(eng, spy, testConfig(), true)

	summary, err := f.Run(context.Background(), PhaseInitial, in)
	require.NoError(t, err)
	require.NotNil(t, summary)

	want := []string{
		"manual", "quack", "quack", "clip", "clip", "tfcrop",
		"extend", "clip", "tfcrop", "extend", "summary",
	}
	if diff := cmp.Diff(want, modes(eng.CallsOf("Flag"))); diff != "" {
		t.Errorf("flag sequence mismatch (-want +got):\n%s", diff)
	}
	calls := eng.CallsOf("Flag")
	assert.Contains(t, calls[0].Detail, "spw='0:0'")
	assert.Contains(t, calls[1].Detail, "spw='0'")
	assert.Contains(t, calls[3].Detail, "field='3C286'")
	assert.Contains(t, calls[3].Detail, "spw='"+in.Plan.FlaggingWindow+"'")
	assert.Contains(t, calls[7].Detail, "field='TARGET'")

	assert.Len(t, summary.Fields, 3)
	assert.Contains(t, spy.fractions, "initial/TARGET")
	assert.Greater(t, spy.fractions["initial/1822-096"], spy.fractions["initial/3C286"])
}

func TestInitialPhaseWithoutTargets(t *testing.T) {
	eng, in := setup(t)
	summary, err := NewFlagger(eng, nil, testConfig(), false).Run(context.Background(), PhaseInitial, in)
	require.NoError(t, err)
	assert.Nil(t, summary)

	calls := eng.CallsOf("Flag")
	assert.Len(t, calls, 7)
	for _, c := range calls {
		assert.NotContains(t, c.Detail, "TARGET")
	}
	assert.NotContains(t, modes(calls), "summary")
}

func TestEmptyRoleSkipsRules(t *testing.T) {
	eng, in := setup(t)
	in.Roles.Phase = nil
	_, err := NewFlagger(eng, nil, testConfig(), true).Run(context.Background(), PhaseInitial, in)
	require.NoError(t, err)
	assert.Len(t, eng.CallsOf("Flag"), 8)
}

func TestFlaggingWindowNeedsPlan(t *testing.T) {
	eng, in := setup(t)
	in.Plan = nil
	_, err := NewFlagger(eng, nil, testConfig(), true).Run(context.Background(), PhaseInitial, in)
	require.Error(t, err)
}

func TestSplitPhaseBaselines(t *testing.T) {
	eng, in := setup(t)
	_, err := NewFlagger(eng, nil, testConfig(), true).Run(context.Background(), PhaseSplit, in)
	require.NoError(t, err)

	calls := eng.CallsOf("Flag")
	require.Len(t, calls, 4)
	assert.NotContains(t, calls[0].Detail, "antenna=")
	assert.Contains(t, calls[1].Detail, "antenna='C00&C01; C00&C02;")
	assert.Contains(t, calls[2].Detail, "antenna='C00&S01; C00&E02;")
}

func TestResidualPhaseNeedsModel(t *testing.T) {
	eng, in := setup(t)
	_, err := NewFlagger(eng, nil, testConfig(), true).Run(context.Background(), PhaseResidual, in)
	require.Error(t, err)
	assert.Empty(t, eng.CallsOf("Flag")[1:])
}

func TestBaselineSelector(t *testing.T) {
	ants := []string{"C00", "C01", "E02"}
	assert.Equal(t, "C00&C01", BaselineSelector(ants, ShortBaselines))
	assert.Equal(t, "C00&E02; C01&E02", BaselineSelector(ants, LongBaselines))
	assert.Empty(t, BaselineSelector([]string{"E02", "W03"}, ShortBaselines))
}

func TestPolicyCoversEveryPhase(t *testing.T) {
	for _, p := range Phases {
		rules := RulesFor(p)
		require.NotEmpty(t, rules, p)
		assert.Equal(t, engine.FlagSummary, rules[len(rules)-1].Request.Mode, p)
	}
}
