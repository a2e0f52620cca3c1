package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
capture:
  system:
    logging:
      level: WARN
  stages:
    from_multisrc_ms: true
    flag_init: true
    do_init_cal: true
    do_split: true
    do_split_avg: true
    do_selfcal: true
    target: true
  inputs:
    ms_file: multi.ms
  selfcal:
    loops: 2
    phase_loops: 1
    mjy_threshold: 1
    niter_start: 1000
    solints: ["8min", "4min"]
    chan_avg: 10
  engine:
    type: simulated
  storage:
    type: local
    base_dir: %PRODUCTS%
  database:
    type: memory
  metrics:
    backend: none
`

func resources(t *testing.T) Resources {
	t.Helper()
	job, err := os.ReadFile("../../cmd/capture/resources/job.yaml")
	require.NoError(t, err)
	cfg := strings.ReplaceAll(testConfig, "%PRODUCTS%", t.TempDir())
	return Resources{Config: []byte(cfg), Job: job}
}

func execute(t *testing.T, res Resources, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(res)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlanFromFlags(t *testing.T) {
	out, err := execute(t, resources(t), "plan", "--channels", "2048", "--freq-mhz", "300")
	require.NoError(t, err)
	assert.Contains(t, out, "Band:      P")
	assert.Contains(t, out, "Cutoff:    0.3")
	assert.Contains(t, out, "Flagging:  0:101~1900")
}

func TestPlanUnsupportedSetup(t *testing.T) {
	_, err := execute(t, resources(t), "plan", "--channels", "300", "--freq-mhz", "300")
	assert.Error(t, err)
}

func TestPlanFromDataset(t *testing.T) {
	out, err := execute(t, resources(t), "plan", "--dataset", "multi.ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset:   multi.ms")
	assert.Contains(t, out, "Targets:   TARGET")
}

func TestClassify(t *testing.T) {
	out, err := execute(t, resources(t), "classify", "3C286", "0521+166", "MYTARGET")
	require.NoError(t, err)
	assert.Contains(t, out, "Amplitude: 3C286\n")
	assert.Contains(t, out, "Phase:     0521+166\n")
	assert.Contains(t, out, "Targets:   MYTARGET\n")
}

func TestSchedule(t *testing.T) {
	out, err := execute(t, resources(t), "schedule")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "1,000")
	assert.Contains(t, lines[1], "8min")
	assert.Contains(t, lines[3], "(image only)")
}

func TestScheduleFromConfigFile(t *testing.T) {
	res := resources(t)
	path := filepath.Join(t.TempDir(), "field.yaml")
	cfg := strings.Replace(string(res.Config), "loops: 2", "loops: 0", 1)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	out, err := execute(t, res, "--config", path, "schedule")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestRun(t *testing.T) {
	out, err := execute(t, resources(t), "run", "--stage", "do_selfcal=false")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")
	assert.Regexp(t, `selfcal\s+SKIPPED`, out)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, resources(t), "version")
	require.NoError(t, err)
	assert.Equal(t, "capture "+Version+"\n", out)
}
