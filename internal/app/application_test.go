package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func testYAML(productsDir string) config.EmbeddedConfig {
	return config.EmbeddedConfig(fmt.Sprintf(`
capture:
  system:
    logging:
      level: WARN
  stages:
    from_multisrc_ms: true
    flag_bad_ants: true
    flag_init: true
    do_init_cal: true
    do_flag: true
    do_split: true
    do_split_avg: true
    do_selfcal: true
    target: true
  inputs:
    ms_file: multi.ms
  selfcal:
    loops: 1
    phase_loops: 1
    mjy_threshold: 1
    niter_start: 100
    solints: ["8min"]
    chan_avg: 10
  engine:
    type: simulated
  storage:
    type: local
    base_dir: %s
  database:
    type: memory
  metrics:
    backend: none
`, productsDir))
}

func jobYAML(t *testing.T) jsl.JSLDefinitionBytes {
	t.Helper()
	data, err := os.ReadFile("../../cmd/capture/resources/job.yaml")
	require.NoError(t, err)
	return data
}

func TestRunApplication(t *testing.T) {
	run, err := RunApplication(context.Background(), "", testYAML(t.TempDir()), jobYAML(t), Overrides{})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	assert.Equal(t, "multi.ms", run.Dataset)
	assert.Equal(t, "TARGET-selfcalimg1", run.ExecutionContext.GetString("final_image"))
}

func TestRunApplicationWithSQLiteLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	cfg := strings.Replace(string(testYAML(t.TempDir())), "type: memory", "type: sqlite\n    database: "+dbPath, 1)

	run, err := RunApplication(context.Background(), "", config.EmbeddedConfig(cfg), jobYAML(t), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRunApplicationRejectsInvalidOverrides(t *testing.T) {
	run, err := RunApplication(context.Background(), "", testYAML(t.TempDir()), jobYAML(t),
		Overrides{Stages: map[string]string{"do_everything": "true"}})
	assert.Nil(t, run)
	assert.Equal(t, exception.KindUnsupportedConfiguration, exception.KindOf(err))
}

func TestOverridesApply(t *testing.T) {
	cfg, err := config.LoadConfig("", testYAML(t.TempDir()))
	require.NoError(t, err)

	err = Overrides{
		MSFile: "other.ms",
		Stages: map[string]string{"do_selfcal": "false", "do_subband_selfcal": "true", "flag_bad_freq": "1"},
	}.Apply(cfg)
	require.NoError(t, err)

	st := cfg.Capture.Stages
	assert.Equal(t, "other.ms", cfg.Capture.Inputs.MSFile)
	assert.True(t, st.DoSubbandSelfCal)
	assert.False(t, st.DoSelfCal)
	assert.True(t, st.FindBadChans, "flagging bad channels implies finding them")
	assert.True(t, st.DoInitCal, "flags without an override keep their value")
}

func TestOverridesApplyValidates(t *testing.T) {
	cfg, err := config.LoadConfig("", testYAML(t.TempDir()))
	require.NoError(t, err)

	err = Overrides{Stages: map[string]string{"do_split": "maybe"}}.Apply(cfg)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))

	cfg.Capture.Inputs.MSFile = ""
	err = Overrides{}.Apply(cfg)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}
