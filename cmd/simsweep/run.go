package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"simsweep/internal/config"
	"simsweep/internal/controller"
	"simsweep/internal/logging"
	"simsweep/internal/metrics"
	"simsweep/internal/supervisor"
)

var (
	runWorkDir     string
	runTargetsPath string
	runTimeout     time.Duration
	runQuiet       bool
)

// runSummary is what the run command prints once the simulator exited.
type runSummary struct {
	Target     string            `json:"target"`
	State      supervisor.State  `json:"state"`
	ExitCode   int               `json:"exit_code"`
	DurationMS int64             `json:"duration_ms"`
	Metrics    metrics.Record    `json:"metrics"`
	Provenance map[string]string `json:"provenance,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run <target> [config-dir]",
	Short: "Run a single simulation and print its metrics",
	Long: "run starts the target once with config-dir (default config/base) under the\n" +
		"target timeout, echoes its output and prints the resolved metric record.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx)

		targets, err := config.LoadTargets(runTargetsPath)
		if err != nil {
			return err
		}
		target, err := config.SelectTarget(targets, args[0], "")
		if err != nil {
			return err
		}
		configDir := controller.DefaultConfigDir
		if len(args) > 1 {
			configDir = args[1]
		}
		timeout := target.Timeout
		if runTimeout > 0 {
			timeout = runTimeout
		}
		exe := target.Executable
		if !filepath.IsAbs(exe) {
			exe = filepath.Join(runWorkDir, exe)
		}
		if abs, err := filepath.Abs(exe); err == nil {
			exe = abs
		}

		c := supervisor.Command{
			Path:    exe,
			Args:    []string{configDir},
			Dir:     runWorkDir,
			Timeout: timeout,
		}
		if !runQuiet {
			c.Echo = cmd.ErrOrStderr()
		}
		p, err := supervisor.New(log).Start(ctx, c)
		if err != nil {
			return err
		}
		// an interrupt stops the simulator; Wait then reports Stopped
		defer context.AfterFunc(ctx, func() { _ = p.Stop() })()

		state, err := p.Wait(0)
		if err != nil {
			return err
		}
		res := p.Result()
		rec, diag := metrics.NewReader(log).Read(metrics.Input{Dir: runWorkDir, Output: p.Output()})
		sum := runSummary{
			Target:     target.Name,
			State:      state,
			ExitCode:   res.ExitCode,
			DurationMS: res.Duration().Milliseconds(),
			Metrics:    rec,
		}
		if len(diag.Provenance) > 0 {
			sum.Provenance = make(map[string]string, len(diag.Provenance))
			for f, src := range diag.Provenance {
				sum.Provenance[f.String()] = src
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
		if state != supervisor.Completed {
			return &exitError{code: 1, err: fmt.Errorf("%s %s", target.Name, state)}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", ".", "Simulator project root")
	runCmd.Flags().StringVar(&runTargetsPath, "targets", "", "YAML file with additional targets")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Override the target timeout")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not echo simulator output")
}
