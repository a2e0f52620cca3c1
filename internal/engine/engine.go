// Package engine defines the contract between the pipeline and the visibility processing engine
// that performs import, flagging, calibration solves, imaging and averaging.
//
// Every method blocks until the engine finishes and honours ctx cancellation. The pipeline is the
// only writer of the artifact namespace: it deletes a name before reusing it.
package engine

import (
	"context"

	exception "github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

// Engine is the visibility processing engine.
type Engine interface {
	// Import converts a raw FITS file into the dataset.
	Import(ctx context.Context, raw, dataset string) error
	// Exists reports whether an artifact (dataset, table or image product) exists.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes an artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, name string) error
	// Rename moves an artifact to a new name.
	Rename(ctx context.Context, from, to string) error
	// Metadata reads the fields, scans, antennas, channel frequencies, correlations and
	// spectral windows of a dataset.
	Metadata(ctx context.Context, dataset string) (*Metadata, error)

	// Flag runs one flagging command and returns the summary when the mode is summary.
	Flag(ctx context.Context, dataset string, req FlagRequest) (*FlagCounts, error)

	// ClearCalibration resets the model and corrected columns.
	ClearCalibration(ctx context.Context, dataset string) error
	// SetFluxModel injects the standard flux model of field.
	SetFluxModel(ctx context.Context, dataset, field, spw string) error
	SolveDelay(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error)
	SolveGain(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error)
	SolveBandpass(ctx context.Context, dataset string, req SolveRequest) (CalibrationTable, error)
	SolveFluxScale(ctx context.Context, dataset string, req FluxScaleRequest) (CalibrationTable, error)
	Apply(ctx context.Context, dataset string, req ApplyRequest) error

	// Image deconvolves the dataset. Niter 0 produces a dirty image.
	Image(ctx context.Context, dataset string, req ImageRequest) (Image, error)
	// ExportFITS writes an image product as a FITS file.
	ExportFITS(ctx context.Context, imageProduct, fitsPath string) error

	// Transform splits or averages a dataset into req.Output and returns the output name.
	Transform(ctx context.Context, dataset string, req TransformRequest) (string, error)
	// Concat joins datasets into output.
	Concat(ctx context.Context, inputs []string, output string) error
	// Statistics returns the mean visibility amplitude of a selection.
	Statistics(ctx context.Context, dataset string, req StatisticsRequest) (float64, error)
}

// Require returns a missing input error raised by module when name does not exist.
func Require(ctx context.Context, eng Engine, module, name string) error {
	ok, err := eng.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return exception.NewMissingInputError(module, name)
	}
	return nil
}
