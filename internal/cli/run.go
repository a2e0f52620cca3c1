package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/capture/internal/app"
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

func newRunCommand(g *globalFlags, res Resources) *cobra.Command {
	var overrides app.Overrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reduction",
		Long: `Run the reduction job on the configured dataset.

Examples:
  capture run
  capture run --ms 3C286.ms
  capture run --stage do_selfcal=false --stage make_dirty=true
  capture run -c field.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := g.configBytes(res)
			if err != nil {
				return err
			}
			run, err := app.RunApplication(cmd.Context(), g.envFile, raw, res.Job, overrides)
			if run != nil {
				printRun(cmd, run)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&overrides.MSFile, "ms", "", "multi-source measurement set (overrides inputs.ms_file)")
	cmd.Flags().StringToStringVar(&overrides.Stages, "stage", nil, "stage flag override, key=true|false (repeatable)")
	return cmd
}

func printRun(cmd *cobra.Command, run *model.PipelineRun) {
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %s (%s)\n", run.ID, run.Status, run.ExitStatus)
	for _, se := range run.StageExecutions {
		line := fmt.Sprintf("  %-20s %-10s %s", se.StageName, se.Status, se.ExitStatus)
		if len(se.Warnings) > 0 {
			line += fmt.Sprintf("  (%d warnings)", len(se.Warnings))
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
