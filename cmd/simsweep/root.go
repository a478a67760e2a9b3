package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"simsweep/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "simsweep",
	Short: "Parameter sweeps and live monitoring for simulator binaries",
	Long: "simsweep builds a simulator, runs it once per parameter variant, collects the\n" +
		"metrics each run leaves behind and serves live snapshots of a running simulation.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SetContext(logging.NewContext(cmd.Context(), logging.New(logLevel)))
	},
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(rootCmd.ErrOrStderr(), ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(dashboardCmd)
}
