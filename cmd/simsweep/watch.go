package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"simsweep/internal/broadcast"
	"simsweep/internal/logging"
	"simsweep/internal/tui"
)

var (
	watchFile     string
	watchInterval time.Duration
	watchSimple   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live simulation metrics in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())
		b := broadcast.New(broadcast.FileSource{Path: watchFile}, log.With("component", "broadcaster"), broadcast.Options{
			Interval:    watchInterval,
			HistorySize: tui.HistorySize,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return b.Run(gctx) })
		g.Go(func() error {
			// quitting the view ends the broadcaster too
			defer cancel()
			return tui.Run(gctx, b, tui.Options{
				Out:      cmd.OutOrStdout(),
				File:     watchFile,
				Interval: watchInterval,
				Simple:   watchSimple,
			})
		})
		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchFile, "file", "f", broadcast.DefaultMetricsFile, "Metrics file written by the simulation")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", broadcast.DefaultInterval, "Refresh interval")
	watchCmd.Flags().BoolVar(&watchSimple, "simple", false, "Plain text output even on a terminal")
}
