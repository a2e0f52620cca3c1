package report

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/capture/pkg/batch/adapter/storage"
	"github.com/tigerroll/capture/pkg/batch/component/writer/parquet"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const module = "report"

// Report object names below <run id>/reports.
const (
	BadAntennasReport = "bad_antennas"
	FlagsReport       = "flag_summaries"
	ScheduleReport    = "selfcal_schedule"
)

// Publisher uploads reports and images of a run.
type Publisher struct {
	store storage.ObjectStore
	// sourceDir holds the FITS files written by the engine.
	sourceDir   string
	compression string
}

// NewPublisher creates a Publisher. FITS paths are resolved against sourceDir. Objects are named
// below the run id; the store applies its configured prefix.
func NewPublisher(store storage.ObjectStore, sourceDir, compression string) *Publisher {
	return &Publisher{store: store, sourceDir: sourceDir, compression: compression}
}

// Publish writes the three reports as Parquet and uploads every FITS image. Failures of single
// objects are collected; the names of the objects that were uploaded are returned.
func (p *Publisher) Publish(ctx context.Context, runID string, r *Report) ([]string, error) {
	var published []string
	var errs error

	dir := path.Join(runID, "reports")
	names, err := writeReport(ctx, p, dir, BadAntennasReport, r.BadAntennas())
	published, errs = append(published, names...), appendErr(errs, err)
	names, err = writeReport(ctx, p, dir, FlagsReport, r.Flags())
	published, errs = append(published, names...), appendErr(errs, err)
	names, err = writeReport(ctx, p, dir, ScheduleReport, r.Schedule())
	published, errs = append(published, names...), appendErr(errs, err)

	for _, fits := range r.FITS() {
		name, err := p.uploadFITS(ctx, runID, fits)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if name != "" {
			published = append(published, name)
		}
	}
	logger.Event("publication", "run_id", runID, "store", p.store.Type(), "objects", len(published))
	return published, errs
}

func appendErr(errs, err error) error {
	if err == nil {
		return errs
	}
	return multierror.Append(errs, err)
}

func writeReport[T any](ctx context.Context, p *Publisher, dir, name string, rows []T) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	w, err := parquet.NewWriter[T](name, map[string]interface{}{
		"outputBaseDir":   dir,
		"compressionType": p.compression,
	}, p.store, func(T) string { return name })
	if err != nil {
		return nil, err
	}
	if err := w.Write(ctx, rows); err != nil {
		return nil, err
	}
	if err := w.Close(ctx); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}

// uploadFITS uploads one image. A file the engine did not materialize on disk is skipped.
func (p *Publisher) uploadFITS(ctx context.Context, runID, fits string) (string, error) {
	src := fits
	if !filepath.IsAbs(src) {
		src = filepath.Join(p.sourceDir, fits)
	}
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("Publication: image %s not found in %s, skipped.", fits, p.sourceDir)
		return "", nil
	}
	if err != nil {
		return "", exception.NewBatchError(module, "failed to open image "+fits, err, exception.KindPersistence)
	}
	defer f.Close()

	name := path.Join(runID, "images", filepath.Base(fits))
	if err := p.store.Upload(ctx, "", name, f, storage.ContentTypeFor(name)); err != nil {
		return "", exception.NewBatchError(module, "failed to upload image "+fits, err, exception.KindPersistence)
	}
	return name, nil
}
