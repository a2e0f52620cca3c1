package report

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/capture/internal/badants"
	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/internal/selfcal"
	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/capture/pkg/batch/adapter/storage/local"
)

func sampleReport() *Report {
	r := New()
	r.AddBadAntennas(&badants.Result{
		Cutoff: 0.3,
		Scans: []badants.ScanResult{{
			Scan: 1, Field: "3C286", Means: map[string]float64{"C03": 0.05, "C00": 1}, Bad: []string{"C03"},
		}},
	})
	r.AddFlags("initial", "obs.ms", &engine.FlagCounts{Fields: map[string]engine.FieldFlags{
		"TARGET": {Flagged: 10, Total: 100},
		"3C286":  {Flagged: 5, Total: 100},
	}})
	r.AddSelfCal(&selfcal.Result{
		Field: "TARGET",
		Schedule: selfcal.Schedule{
			{Index: 0, Niter: 100, Threshold: "10mJy", Mode: selfcal.ModePhase, Solint: "8min"},
			{Index: 1, Niter: 200, Threshold: "5mJy", Mode: selfcal.ModeAmpPhase, Final: true},
		},
		Generations: []*selfcal.Generation{
			{Index: 0, Dataset: "avg.ms", Image: engine.Image{Name: "TARGET-selfcalimg0"}, FITS: "TARGET-selfcalimg0.fits", Tables: []string{"TARGETp0.GT"}},
			{Index: 1, Dataset: "TARGET-selfcal0.ms", Image: engine.Image{Name: "TARGET-selfcalimg1"}, FITS: "TARGET-selfcalimg1.fits"},
		},
	})
	return r
}

func TestReportRows(t *testing.T) {
	r := sampleReport()

	bad := r.BadAntennas()
	require.Len(t, bad, 2)
	assert.Equal(t, "C00", bad[0].Antenna)
	assert.False(t, bad[0].Bad)
	assert.True(t, bad[1].Bad)

	flags := r.Flags()
	require.Len(t, flags, 2)
	assert.Equal(t, "3C286", flags[0].Field)
	assert.InDelta(t, 0.1, flags[1].Fraction, 1e-9)

	sched := r.Schedule()
	require.Len(t, sched, 2)
	assert.Equal(t, "TARGETp0.GT", sched[0].Tables)
	assert.Equal(t, "TARGET-selfcal0.ms", sched[1].Dataset)
	assert.Equal(t, []string{"TARGET-selfcalimg0.fits", "TARGET-selfcalimg1.fits"}, r.FITS())
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	store, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "TARGET-selfcalimg0.fits"), []byte("SIMPLE  =                    T"), 0o644))

	p := NewPublisher(store, work, "snappy")
	published, err := p.Publish(ctx, "run-1", sampleReport())
	require.NoError(t, err)

	want := []string{
		"run-1/images/TARGET-selfcalimg0.fits",
		"run-1/reports/bad_antennas.parquet",
		"run-1/reports/flag_summaries.parquet",
		"run-1/reports/selfcal_schedule.parquet",
	}
	sort.Strings(published)
	assert.Equal(t, want, published)

	var listed []string
	require.NoError(t, store.ListObjects(ctx, "", "run-1/", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.ElementsMatch(t, want, listed)
}

func TestPublishEmptyReport(t *testing.T) {
	store, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	published, err := NewPublisher(store, t.TempDir(), "none").Publish(context.Background(), "run-2", New())
	require.NoError(t, err)
	assert.Empty(t, published)
}
