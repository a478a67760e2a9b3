package main

import (
	"github.com/spf13/cobra"

	"simsweep/internal/dashboard"
	"simsweep/internal/sink"
)

var (
	dashOutDir string
	dashTitle  string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	Long:  "dashboard renders Grafana dashboards over the sweep result and live snapshot tables.\nGREPTIMEDB_DATASOURCE_UID selects the datasource.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashOutDir, dashboard.Params{
			Title:         dashTitle,
			ResultTable:   sink.ResultTable,
			SnapshotTable: sink.SnapshotTable,
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashOutDir, "out", "o", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashTitle, "title", "", "Dashboard title")
}
