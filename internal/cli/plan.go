package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/capture/internal/channelplan"
	"github.com/tigerroll/capture/internal/engine"
	engineprovider "github.com/tigerroll/capture/internal/engine/provider"
	"github.com/tigerroll/capture/internal/fields"
)

type planFlags struct {
	dataset  string
	channels int
	freqMHz  float64
	pols     int
}

func newPlanCommand(g *globalFlags, res Resources) *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the channel plan and field roles of a dataset",
		Long: `Show the band, bad-antenna cutoff and spectral windows derived for a dataset.

With --dataset the metadata is read through the configured engine and the
fields are classified as well. Otherwise the spectral setup is taken from
--channels, --freq-mhz and --pols.

Examples:
  capture plan --dataset multi.ms
  capture plan --channels 2048 --freq-mhz 300`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.dataset == "" {
				plan, err := channelplan.Plan(channelplan.SpectralWindow{
					Channels:      f.channels,
					MinFreqHz:     f.freqMHz * 1e6,
					Polarizations: f.pols,
				})
				if err != nil {
					return err
				}
				printPlan(cmd, plan)
				return nil
			}

			cfg, err := g.loadConfig(res)
			if err != nil {
				return err
			}
			eng, err := engineprovider.NewRawEngine(cfg)
			if err != nil {
				return err
			}
			if err := engine.Require(cmd.Context(), eng, "cli", f.dataset); err != nil {
				return err
			}
			md, err := eng.Metadata(cmd.Context(), f.dataset)
			if err != nil {
				return err
			}
			plan, err := channelplan.Plan(channelplan.WindowOf(md))
			if err != nil {
				return err
			}
			catalog, err := fields.LoadCatalog(cfg.Capture.Inputs.CalibratorCatalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset:   %s (%d channels, %d antennas)\n", md.Dataset, md.NumChannels(), len(md.Antennas))
			printPlan(cmd, plan)
			printRoles(cmd, fields.NewClassifier(catalog).Classify(md.Fields))
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.dataset, "dataset", "d", "", "dataset to read the spectral setup from")
	cmd.Flags().IntVar(&f.channels, "channels", 2048, "channel count")
	cmd.Flags().Float64Var(&f.freqMHz, "freq-mhz", 300, "lowest channel frequency in MHz")
	cmd.Flags().IntVar(&f.pols, "pols", 2, "polarization count")
	return cmd
}

func printPlan(cmd *cobra.Command, p channelplan.ChannelPlan) {
	fmt.Fprintf(cmd.OutOrStdout(), "Band:      %s\n", p.Band)
	fmt.Fprintf(cmd.OutOrStdout(), "Cutoff:    %g\n", p.BadAntennaCutoff)
	fmt.Fprintf(cmd.OutOrStdout(), "Flagging:  %s\n", p.FlaggingWindow)
	fmt.Fprintf(cmd.OutOrStdout(), "Calibrate: %s\n", p.CalibrationWindow)
	fmt.Fprintf(cmd.OutOrStdout(), "Stats:     %s\n", p.StatisticsWindow)
}
