package badants

import (
	"fmt"

	"github.com/tigerroll/capture/internal/engine"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// RFIBand is an open frequency interval with persistent interference, in Hz.
type RFIBand struct {
	LowHz, HighHz float64
}

// RFIBands are always flagged when observed.
var RFIBands = []RFIBand{
	{0.36e9, 0.3796e9},
	{0.486e9, 0.49355e9},
	{0.8808e9, 0.885596e9},
	{0.7646e9, 0.769092e9},
}

// FindBadChannels returns one manual flag command per RFI band with observed channels inside it.
func FindBadChannels(md *engine.Metadata) []string {
	var cmds []string
	for _, b := range RFIBands {
		first, last := -1, -1
		for i, f := range md.ChannelFreqs {
			if f > b.LowHz && f < b.HighHz {
				if first < 0 || i < first {
					first = i
				}
				if i > last {
					last = i
				}
			}
		}
		if first < 0 {
			continue
		}
		cmds = append(cmds, fmt.Sprintf("mode='manual' spw='0:%d~%d'", first, last))
	}
	if len(cmds) == 0 {
		logger.Infof("None of the well-known RFI-prone frequencies were found in %s.", md.Dataset)
	} else {
		logger.Event("bad channels", "dataset", md.Dataset, "commands", cmds)
	}
	return cmds
}
