package selfcal

import (
	"context"
	"fmt"

	"github.com/tigerroll/capture/internal/engine"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
)

// ImageName is the image base name of iteration i of field.
func ImageName(field string, i, niter int) string {
	if niter == 0 {
		return field + "-dirty-img"
	}
	return fmt.Sprintf("%s-selfcalimg%d", field, i)
}

// Imager images a dataset and exports the restored image as FITS.
type Imager struct {
	eng engine.Engine
	cfg config.ImagingConfig
}

// NewImager creates an Imager.
func NewImager(eng engine.Engine, cfg config.ImagingConfig) *Imager {
	return &Imager{eng: eng, cfg: cfg}
}

// Make images field of dataset as iteration i and returns the image and its FITS file.
// Previous products of the same name are replaced.
func (im *Imager) Make(ctx context.Context, dataset, field string, i, niter int, threshold string) (engine.Image, string, error) {
	name := ImageName(field, i, niter)
	fits := name + ".fits"
	for _, n := range []string{name, fits} {
		if err := im.eng.Delete(ctx, n); err != nil {
			return engine.Image{}, "", err
		}
	}
	img, err := im.eng.Image(ctx, dataset, engine.ImageRequest{
		Name:        name,
		Field:       field,
		Cell:        im.cfg.Cell(),
		ImSize:      im.cfg.ImSizePix,
		Robust:      im.cfg.Robust,
		NTerms:      im.cfg.NTerms,
		WProjPlanes: im.cfg.WProjPlanes,
		Niter:       niter,
		Threshold:   threshold,
	})
	if err != nil {
		return engine.Image{}, "", err
	}
	if err := im.eng.ExportFITS(ctx, img.Product, fits); err != nil {
		return engine.Image{}, "", err
	}
	return img, fits, nil
}
