// Package dashboard renders Grafana dashboards over the GreptimeDB tables
// written by the sweep and monitor sinks.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"simsweep/internal/metrics"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Params name the tables the dashboard queries.
type Params struct {
	Title         string
	ResultTable   string
	SnapshotTable string
}

// ThroughputColumn is the result column holding the simulation speed.
func (Params) ThroughputColumn() string { return metrics.Throughput.String() }

// LatencyColumn is the result column holding the average latency.
func (Params) LatencyColumn() string { return metrics.LatencyAvg.String() }

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Datasource UIDs are taken from the environment.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if p.Title == "" {
		p.Title = "Simulation sweeps"
	}

	tmpl, err := template.New("dashboard").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, t := range tmpl.Templates() {
		if !strings.HasSuffix(t.Name(), ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(t.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
