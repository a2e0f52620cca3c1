package selfcal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tigerroll/capture/internal/engine"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// Window is a spectral window calibrated on its own.
type Window struct {
	// Spw selects the window; empty selects all data.
	Spw string
	// Suffix is appended to gain table names.
	Suffix string
}

// singleBand is the window list of the classic loop.
var singleBand = []Window{{}}

// Partition splits nchan channels of spectral window 0 into chunks of width channels. The last
// chunk takes the remainder.
func Partition(nchan, width int) []string {
	var out []string
	for lo := 0; lo < nchan; lo += width {
		hi := min(lo+width, nchan) - 1
		out = append(out, fmt.Sprintf("0:%d~%d", lo, hi))
	}
	return out
}

func subbandWindows(n int) []Window {
	out := make([]Window, n)
	for k := range out {
		out[k] = Window{Spw: strconv.Itoa(k), Suffix: "sb" + strconv.Itoa(k)}
	}
	return out
}

// subbands turns dataset into one spectral window per chunk of width channels and returns the
// windows. A dataset that already has several windows keeps them.
func subbands(ctx context.Context, eng engine.Engine, dataset string, width int) ([]Window, error) {
	if width <= 0 {
		return nil, exception.NewBatchErrorf(module, exception.KindConfiguration, "subband_chan must be positive, got %d", width)
	}
	md, err := eng.Metadata(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if md.SpectralWindows > 1 {
		return subbandWindows(md.SpectralWindows), nil
	}
	if md.NumChannels() <= width {
		return subbandWindows(1), nil
	}

	chunks := Partition(md.NumChannels(), width)
	names := make([]string, len(chunks))
	for k, spw := range chunks {
		names[k] = fmt.Sprintf("msimg%d.ms", k)
		if err := eng.Delete(ctx, names[k]); err != nil {
			return nil, err
		}
		if _, err := eng.Transform(ctx, dataset, engine.TransformRequest{Output: names[k], Spw: spw, Column: engine.ColumnAll}); err != nil {
			return nil, err
		}
	}
	old := "old" + dataset
	if err := eng.Delete(ctx, old); err != nil {
		return nil, err
	}
	if err := eng.Rename(ctx, dataset, old); err != nil {
		return nil, err
	}
	if err := eng.Concat(ctx, names, dataset); err != nil {
		return nil, err
	}
	for _, n := range names {
		if err := eng.Delete(ctx, n); err != nil {
			return nil, err
		}
	}
	logger.Event("sub-bands", "dataset", dataset, "width", width, "chunks", chunks)
	return subbandWindows(len(chunks)), nil
}
