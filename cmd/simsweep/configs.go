package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"simsweep/internal/config"
)

var (
	configsRoot        string
	configsTargetsPath string
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List sweep configurations and simulation targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		names, err := config.FindSweepConfigs(configsRoot)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Sweep configs (%s):\n", config.SweepsDir)
		if len(names) == 0 {
			fmt.Fprintln(out, "  (none found)")
		}
		for _, n := range names {
			fmt.Fprintf(out, "  %s\n", n)
		}

		targets, err := config.LoadTargets(configsTargetsPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Targets:")
		for _, n := range config.TargetNames(targets) {
			t := targets[n]
			fmt.Fprintf(out, "  %-12s %s (timeout %s)\n", n, t.Description, t.Timeout)
		}
		return nil
	},
}

func init() {
	configsCmd.Flags().StringVar(&configsRoot, "work-dir", ".", "Simulator project root")
	configsCmd.Flags().StringVar(&configsTargetsPath, "targets", "", "YAML file with additional targets")
}
