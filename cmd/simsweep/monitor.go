package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"simsweep/internal/broadcast"
	"simsweep/internal/config"
	"simsweep/internal/controller"
	"simsweep/internal/logging"
	"simsweep/internal/monitor"
	"simsweep/internal/sink"
	"simsweep/internal/sweep"
)

var (
	monAddr        string
	monFile        string
	monInterval    time.Duration
	monHistory     int
	monBaseDir     string
	monTargetsPath string
	monResultsDir  string
	monLogFile     string
	monReadOnly    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve live simulation metrics over HTTP and websocket",
	Long: "monitor watches the metrics file a running simulation rewrites, pushes every new\n" +
		"snapshot to websocket clients and exposes a pull API. Unless --read-only is set it\n" +
		"also lets clients start, stop and build simulations and launch sweeps.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx)

		file := monFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(monBaseDir, file)
		}
		b := broadcast.New(broadcast.FileSource{Path: file}, log.With("component", "broadcaster"), broadcast.Options{
			Interval:    monInterval,
			HistorySize: monHistory,
		})

		snapshots, cleanup, err := newSnapshotWriters(monLogFile)
		if err != nil {
			return err
		}
		defer cleanup()
		var batcher *sink.SnapshotBatcher
		if !snapshots.Empty() {
			batcher = sink.NewSnapshotBatcher(snapshots, log.With("component", "snapshots"), 0, 0)
			b.OnSnapshot(func(s broadcast.Snapshot) { batcher.Add(s) })
		}

		var (
			ctl *controller.Controller
			api monitor.Controller
		)
		if !monReadOnly {
			targets, err := config.LoadTargets(monTargetsPath)
			if err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return errors.Wrap(err, "locate own executable")
			}
			ctl = controller.New(controller.Options{
				BaseDir:     monBaseDir,
				ResultsDir:  monResultsDir,
				Targets:     targets,
				MetricsFile: file,
				SelfPath:    self,
				Publisher:   b,
				Log:         log,
			})
			api = ctl
		}

		srv := monitor.NewServer(b, api, log)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return b.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx, monAddr) })
		if batcher != nil {
			g.Go(func() error { return batcher.Run(gctx) })
		}
		err = g.Wait()

		if ctl != nil {
			if _, serr := ctl.Stop(); serr != nil && !errors.Is(serr, controller.ErrNotRunning) {
				log.Warn("stopping simulation on shutdown failed", "err", serr)
			}
		}
		return err
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monAddr, "addr", ":5000", "Listen address")
	monitorCmd.Flags().StringVar(&monFile, "file", broadcast.DefaultMetricsFile, "Metrics file written by the simulation")
	monitorCmd.Flags().DurationVar(&monInterval, "interval", broadcast.DefaultInterval, "Polling interval")
	monitorCmd.Flags().IntVar(&monHistory, "history", broadcast.DefaultHistorySize, "Snapshots kept in memory")
	monitorCmd.Flags().StringVar(&monBaseDir, "base-dir", ".", "Simulator project root")
	monitorCmd.Flags().StringVar(&monTargetsPath, "targets", "", "YAML file with additional targets")
	monitorCmd.Flags().StringVar(&monResultsDir, "results-dir", sweep.DefaultResultsRoot, "Directory holding batch results")
	monitorCmd.Flags().StringVar(&monLogFile, "log-file", "", "Append snapshots to <log-file>.snapshots")
	monitorCmd.Flags().BoolVar(&monReadOnly, "read-only", false, "Disable the simulation control API")
}
