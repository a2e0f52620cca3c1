package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tigerroll/capture/internal/fields"
)

func newClassifyCommand() *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "classify FIELD...",
		Short: "Classify field names as calibrators or targets",
		Long: `Classify field names against the flux standards and the calibrator catalog.

Examples:
  capture classify 3C286 0521+166 MYTARGET
  capture classify --catalog my-cals.list 3C48 J1234`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := fields.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			roles := fields.NewClassifier(catalog).Classify(args)
			printRoles(cmd, roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "calibrator catalog (default: built-in VLA list)")
	return cmd
}

func printRoles(cmd *cobra.Command, r fields.Roles) {
	fmt.Fprintf(cmd.OutOrStdout(), "Amplitude: %s\n", strings.Join(r.Amplitude, ", "))
	fmt.Fprintf(cmd.OutOrStdout(), "Phase:     %s\n", strings.Join(r.Phase, ", "))
	fmt.Fprintf(cmd.OutOrStdout(), "Targets:   %s\n", strings.Join(r.Targets, ", "))
}
