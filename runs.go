package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/seisinv/config"
	"github.com/pthm-cable/seisinv/registry"
)

var (
	runsRegistry string
	runsRunID    string
	runsAccepted bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := runsRegistry
		if path == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			path = cfg.Paths.Registry
			if path == "" {
				path = filepath.Join(cfg.Derived.OutDir, "runs.db")
			}
		}

		reg, err := registry.Open(path)
		if err != nil {
			return err
		}
		defer reg.Close()

		ctx := context.Background()
		entries, err := reg.List(ctx, runsRunID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tATTEMPT\tINDEX\tSEED\tSTATUS\tITERS\tREL ERR\tACCURACY")
		for _, e := range entries {
			if runsAccepted && !e.Accepted {
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%d\t%.4f\t%.3f\n",
				e.RunID, e.Attempt, e.Index, e.Seed, e.Status, e.Iterations, e.FinalError, e.FinalAccuracy)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if runsRunID != "" {
			attempts, accepted, err := reg.Counts(ctx, runsRunID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d accepted of %d attempts\n", accepted, attempts)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsRegistry, "registry", "", "SQLite run registry (empty = from config)")
	runsCmd.Flags().StringVar(&runsRunID, "run-id", "", "Only list runs of this experiment (name_seed)")
	runsCmd.Flags().BoolVar(&runsAccepted, "accepted", false, "Only list accepted runs")
}
