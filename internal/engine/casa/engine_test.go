package casa

import (
	"context"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/selfcal"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
)

var replyLine = regexp.MustCompile(`(?m)^_reply = "(.*)"$`)

// fakeCASA answers every script with reply and keeps the rendered scripts.
func fakeCASA(t *testing.T, e *Engine, reply string) *[]string {
	t.Helper()
	var scripts []string
	e.runner = func(ctx context.Context, script string) ([]byte, error) {
		text, err := os.ReadFile(script)
		require.NoError(t, err)
		scripts = append(scripts, string(text))
		m := replyLine.FindStringSubmatch(string(text))
		require.Len(t, m, 2)
		require.NoError(t, os.WriteFile(m[1], []byte(reply), 0o644))
		return []byte("casa log line\n"), nil
	}
	return &scripts
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.CasaConfig{Executable: "casa", WorkDir: t.TempDir(), Args: []string{"--nogui"}})
	require.NoError(t, err)
	return e
}

func TestStatisticsReadsMean(t *testing.T) {
	e := newEngine(t)
	scripts := fakeCASA(t, e, `{"ok": true, "error": "", "result": 0.42}`)

	mean, err := e.Statistics(context.Background(), "obs.ms", engine.StatisticsRequest{
		Field: "3C286", Scan: 1, Antenna: "C03", Correlation: "RR", Spw: "0:250~300",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, mean, 1e-12)
	require.Len(t, *scripts, 1)
	s := (*scripts)[0]
	assert.Contains(t, s, "visstat(")
	assert.Contains(t, s, `axis="amp"`)
	assert.Contains(t, s, "useflags=False")
	assert.Contains(t, s, `scan="1"`)
	assert.Contains(t, s, `reportingaxes="ddid"`)
	assert.Contains(t, s, `_out["DATA_DESC_ID=0"]["mean"]`)
}

func TestFlagSummaryDecoded(t *testing.T) {
	e := newEngine(t)
	fakeCASA(t, e, `{"ok": true, "error": "", "result": {"TARGET": {"flagged": 25, "total": 100}}}`)

	summary, err := e.Flag(context.Background(), "obs.ms", engine.FlagRequest{Mode: engine.FlagSummary})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, summary.Fields["TARGET"].Fraction(), 1e-12)
}

func TestTaskFailureReported(t *testing.T) {
	e := newEngine(t)
	fakeCASA(t, e, `{"ok": false, "error": "Traceback: table not found", "result": null}`)

	err := e.Apply(context.Background(), "obs.ms", engine.ApplyRequest{GainTables: []string{"obs.ms.fluxscale"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table not found")
}

func TestMissingReply(t *testing.T) {
	e := newEngine(t)
	e.runner = func(ctx context.Context, script string) ([]byte, error) {
		return []byte("SEVERE: casa crashed\n"), assert.AnError
	}
	err := e.ClearCalibration(context.Background(), "obs.ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "casa crashed")
}

func TestImageChoosesDeconvolver(t *testing.T) {
	e := newEngine(t)
	scripts := fakeCASA(t, e, `{"ok": true, "error": "", "result": null}`)

	img, err := e.Image(context.Background(), "TARGET-selfcal0.ms", engine.ImageRequest{
		Name: "TARGET-selfcalimg1", NTerms: 2, Niter: 200, Threshold: "5mJy", Cell: "1.0arcsec", ImSize: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "TARGET-selfcalimg1.image.tt0", img.Product)
	s := (*scripts)[0]
	assert.Contains(t, s, `deconvolver="mtmfs"`)
	assert.Contains(t, s, `threshold="5mJy"`)
	assert.Contains(t, s, "scales=[0, 5, 15]")
	assert.Contains(t, s, `savemodel="modelcolumn"`)
}

func TestImageSelectsEverySpectralWindow(t *testing.T) {
	e := newEngine(t)
	scripts := fakeCASA(t, e, `{"ok": true, "error": "", "result": null}`)
	imager := selfcal.NewImager(e, config.ImagingConfig{CellSize: []string{"1arcsec"}, ImSizePix: 4096, NTerms: 1})

	_, _, err := imager.Make(context.Background(), "TARGET-selfcal1.ms", "TARGET", 1, 200, "5mJy")
	require.NoError(t, err)
	var tclean string
	for _, s := range *scripts {
		if strings.Contains(s, "tclean(") {
			tclean = s
		}
	}
	require.NotEmpty(t, tclean)
	assert.Contains(t, tclean, `field="TARGET", spw=""`)
	assert.NotContains(t, tclean, `spw="0"`)
	assert.Contains(t, tclean, "niter=200")
}

func TestImageKeepsExplicitSpw(t *testing.T) {
	e := newEngine(t)
	scripts := fakeCASA(t, e, `{"ok": true, "error": "", "result": null}`)

	_, err := e.Image(context.Background(), "TARGET-selfcal1.ms", engine.ImageRequest{Name: "TARGET-selfcalimg1", Spw: "1", NTerms: 1})
	require.NoError(t, err)
	assert.Contains(t, (*scripts)[0], `spw="1"`)
}

func TestFlagArgsPerMode(t *testing.T) {
	list := flagArgs("obs.ms", engine.FlagRequest{Mode: engine.FlagList, Commands: []string{"mode='manual' antenna='C03' scan='1'"}})
	assert.Equal(t, arg{"inpfile", []string{"mode='manual' antenna='C03' scan='1'"}}, list[2])

	rflag, err := pyArgs(flagArgs("obs.ms", engine.FlagRequest{
		Mode: engine.FlagRFlag, Column: engine.ColumnResidual, TimeDevScale: 6, FreqDevScale: 6,
	}))
	require.NoError(t, err)
	assert.Contains(t, rflag, `datacolumn="RESIDUAL_DATA"`)
	assert.Contains(t, rflag, "timedevscale=6, freqdevscale=6")
}

func TestDeleteRemovesImageProducts(t *testing.T) {
	e := newEngine(t)
	for _, name := range []string{"TARGET-selfcalimg0.image", "TARGET-selfcalimg0.model.tt0", "TARGET-selfcal0.ms"} {
		require.NoError(t, os.MkdirAll(e.path(name), 0o755))
	}
	require.NoError(t, e.Delete(context.Background(), "TARGET-selfcalimg0"))

	for name, want := range map[string]bool{
		"TARGET-selfcalimg0.image":     false,
		"TARGET-selfcalimg0.model.tt0": false,
		"TARGET-selfcal0.ms":           true,
	} {
		ok, err := e.Exists(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, want, ok, name)
	}
}

func TestPyLiteral(t *testing.T) {
	for _, tc := range []struct {
		in   interface{}
		want string
	}{
		{true, "True"},
		{"0:51~950", `"0:51~950"`},
		{[]string{"a", "b"}, `["a", "b"]`},
		{-0.001, "-0.001"},
		{nil, "None"},
	} {
		got, err := pyLiteral(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := pyLiteral(struct{}{})
	assert.Error(t, err)
}
