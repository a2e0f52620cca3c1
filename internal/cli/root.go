// Package cli provides the command-line interface for capture.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/core/config/jsl"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

// Version is set at build time.
var Version = "0.1.0"

// Resources are the documents compiled into the binary.
type Resources struct {
	Config config.EmbeddedConfig
	Job    jsl.JSLDefinitionBytes
}

type globalFlags struct {
	envFile    string
	configFile string
}

// configBytes returns the --config document, or the embedded one.
func (g *globalFlags) configBytes(res Resources) (config.EmbeddedConfig, error) {
	if g.configFile == "" {
		return res.Config, nil
	}
	raw, err := os.ReadFile(g.configFile)
	if err != nil {
		return nil, exception.NewBatchError("cli", "failed to read config file "+g.configFile, err, exception.KindConfiguration)
	}
	return raw, nil
}

// loadConfig loads and validates the selected configuration.
func (g *globalFlags) loadConfig(res Resources) (*config.Config, error) {
	raw, err := g.configBytes(res)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(g.envFile, raw)
}

// NewRootCommand builds the command tree.
func NewRootCommand(res Resources) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "capture",
		Short: "Continuum imaging pipeline for GMRT interferometric data",
		Long: `Capture reduces a GMRT observation from a FITS file or multi-source
measurement set to a self-calibrated continuum image: it finds and flags bad
antennas and channels, calibrates, splits the targets, averages and runs the
self-calibration loop.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	envDefault := os.Getenv("ENV_FILE_PATH")
	if envDefault == "" {
		envDefault = ".env"
	}
	root.PersistentFlags().StringVar(&g.envFile, "env-file", envDefault, "path to a .env file")
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "configuration file (default: built-in application.yaml)")

	root.AddCommand(newRunCommand(g, res))
	root.AddCommand(newPlanCommand(g, res))
	root.AddCommand(newClassifyCommand())
	root.AddCommand(newScheduleCommand(g, res))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context, res Resources) error {
	return NewRootCommand(res).ExecuteContext(ctx)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "capture %s\n", Version)
		},
	}
}
