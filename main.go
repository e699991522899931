// Command seisinv runs latent-space seismic inversions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seisinv",
	Short: "Latent-space seismic inversion with stochastic-gradient samplers",
	Long: `seisinv searches the latent space of a generative model for subsurface
fields whose simulated seismic response matches observed recordings.

Runs are repeated with fresh seeds until the requested number of
accepted samples has been collected.`,
	SilenceUsage: true,
	// Invoking the binary without a subcommand runs an inversion.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvert(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (empty = use defaults)")
	registerInvertFlags(rootCmd)
	registerInvertFlags(invertCmd)

	rootCmd.AddCommand(invertCmd)
	rootCmd.AddCommand(runsCmd)
}
