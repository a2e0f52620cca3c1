package selfcal

import (
	"context"

	"github.com/tigerroll/capture/internal/engine"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// defaultKeep is the number of produced generations kept when none is configured.
const defaultKeep = 2

// Generation is the dataset an iteration images, with what the iteration derived from it.
type Generation struct {
	Index   int
	Dataset string
	Image   engine.Image
	FITS    string
	// Tables holds one gain table per spectral window; empty for the final iteration.
	Tables []string
	// Dropped is set once the dataset has been deleted by retention.
	Dropped bool
}

// Arena owns the datasets produced by the loop. Generation 0 is the loop input and is never
// deleted; of the produced generations only the last keep datasets stay on disk.
type Arena struct {
	eng  engine.Engine
	keep int
	gens []*Generation
}

// NewArena creates an arena whose generation 0 is input.
func NewArena(eng engine.Engine, input string, keep int) *Arena {
	if keep <= 0 {
		keep = defaultKeep
	}
	return &Arena{eng: eng, keep: keep, gens: []*Generation{{Index: 0, Dataset: input}}}
}

// Current returns the newest generation.
func (a *Arena) Current() *Generation {
	return a.gens[len(a.gens)-1]
}

// Generations returns every generation, oldest first.
func (a *Arena) Generations() []*Generation {
	return a.gens
}

// Produce registers dataset as the next generation and drops datasets that fell out of the
// retention window.
func (a *Arena) Produce(ctx context.Context, dataset string) (*Generation, error) {
	g := &Generation{Index: len(a.gens), Dataset: dataset}
	a.gens = append(a.gens, g)
	for _, old := range a.gens[1:max(1, len(a.gens)-a.keep)] {
		if old.Dropped {
			continue
		}
		logger.Infof("Self-calibration: dropping generation %d dataset %s.", old.Index, old.Dataset)
		if err := a.eng.Delete(ctx, old.Dataset); err != nil {
			return nil, err
		}
		old.Dropped = true
	}
	return g, nil
}
