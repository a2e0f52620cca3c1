package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tigerroll/capture/internal/selfcal"
)

func newScheduleCommand(g *globalFlags, res Resources) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the self-calibration schedule of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(res)
			if err != nil {
				return err
			}
			s, err := selfcal.PlanSchedule(cfg.Capture.SelfCal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-5s %-10s %-10s %-4s %s\n", "ITER", "NITER", "THRESHOLD", "MODE", "SOLINT")
			for _, it := range s {
				solint := it.Solint
				if it.Final {
					solint = "(image only)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-5d %-10s %-10s %-4s %s\n", it.Index, humanize.Comma(int64(it.Niter)), it.Threshold, it.Mode, solint)
			}
			return nil
		},
	}
}
