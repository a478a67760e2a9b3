package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"simsweep/internal/config"
	"simsweep/internal/logging"
	"simsweep/internal/report"
	"simsweep/internal/runerrors"
	"simsweep/internal/sweep"
)

// Exit codes of the sweep command.
const (
	exitFailedRuns = 1
	exitFatal      = 2
)

var (
	sweepTarget       string
	sweepBatch        string
	sweepSchemaPath   string
	sweepTargetsPath  string
	sweepResultsDir   string
	sweepWorkDir      string
	sweepNoBuild      bool
	sweepBuildTimeout time.Duration
	sweepLogFile      string
	sweepJSON         bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <config> [batch] [target]",
	Short: "Run a parameter sweep",
	Long: "sweep builds the target, runs it once per parameter value of the sweep config\n" +
		"and writes the batch report. The config may be a path or a name under config/sweeps.\n" +
		"Exits 1 when a run failed and 2 when the batch could not complete.",
	Args: cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx)

		batch, targetName := sweepBatch, sweepTarget
		if len(args) > 1 && batch == "" {
			batch = args[1]
		}
		if len(args) > 2 && targetName == "" {
			targetName = args[2]
		}

		path, err := config.ResolveConfigPath(sweepWorkDir, args[0])
		if err != nil {
			printAvailableConfigs(cmd, sweepWorkDir)
			return &exitError{code: exitFatal, err: err}
		}
		cfg, err := config.Load(path, sweepSchemaPath)
		if err != nil {
			return &exitError{code: exitFatal, err: err}
		}
		if !filepath.IsAbs(cfg.BaseConfig) {
			cfg.BaseConfig = filepath.Join(sweepWorkDir, cfg.BaseConfig)
		}
		targets, err := config.LoadTargets(sweepTargetsPath)
		if err != nil {
			return &exitError{code: exitFatal, err: err}
		}
		target, err := config.SelectTarget(targets, targetName, cfg.Target)
		if err != nil {
			return &exitError{code: exitFatal, err: err}
		}

		writers, cleanup, err := newWriters(sweepJSON, sweepLogFile)
		if err != nil {
			return &exitError{code: exitFatal, err: err}
		}
		defer cleanup()

		resultsDir := sweepResultsDir
		if env := os.Getenv("SIMSWEEP_RESULTS_DIR"); env != "" && !cmd.Flags().Changed("results-dir") {
			resultsDir = env
		}
		if !filepath.IsAbs(resultsDir) {
			resultsDir = filepath.Join(sweepWorkDir, resultsDir)
		}

		rep, err := sweep.NewOrchestrator(*cfg, target, sweep.Options{
			ResultsRoot:  resultsDir,
			BatchName:    batch,
			WorkDir:      sweepWorkDir,
			Build:        !sweepNoBuild,
			BuildTimeout: sweepBuildTimeout,
			Log:          log,
			Writers:      []sweep.ResultWriter{writers},
			Reporter:     report.NewWriter(log, cmd.OutOrStdout()),
		}).Run(ctx)
		if err != nil {
			if runerrors.IsFatal(err) || rep == nil {
				return &exitError{code: exitFatal, err: err}
			}
			// interrupted
			return &exitError{code: exitFailedRuns, err: err}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results available in: %s\n", rep.Dir)
		if !rep.OK() {
			return &exitError{code: exitFailedRuns}
		}
		return nil
	},
}

func printAvailableConfigs(cmd *cobra.Command, root string) {
	names, err := config.FindSweepConfigs(root)
	if err != nil {
		return
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Available configs in %s:\n", config.SweepsDir)
	if len(names) == 0 {
		fmt.Fprintln(out, "  (none found)")
	}
	for _, n := range names {
		fmt.Fprintf(out, "  %s\n", n)
	}
}

func init() {
	sweepCmd.Flags().StringVarP(&sweepTarget, "target", "t", "", "Simulation target (overrides the config)")
	sweepCmd.Flags().StringVarP(&sweepBatch, "batch", "b", "", "Batch name (default: config file name)")
	sweepCmd.Flags().StringVar(&sweepSchemaPath, "schema", "", "Path to a CUE schema replacing the built-in one")
	sweepCmd.Flags().StringVar(&sweepTargetsPath, "targets", "", "YAML file with additional targets")
	sweepCmd.Flags().StringVar(&sweepResultsDir, "results-dir", sweep.DefaultResultsRoot, "Directory holding batch results (env SIMSWEEP_RESULTS_DIR)")
	sweepCmd.Flags().StringVar(&sweepWorkDir, "work-dir", ".", "Simulator project root")
	sweepCmd.Flags().BoolVar(&sweepNoBuild, "no-build", false, "Skip make clean && make")
	sweepCmd.Flags().DurationVar(&sweepBuildTimeout, "build-timeout", sweep.DefaultBuildTimeout, "Build timeout")
	sweepCmd.Flags().StringVar(&sweepLogFile, "log-file", "", "Append run records to this JSONL file")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Print run records as JSON to stdout")
}
