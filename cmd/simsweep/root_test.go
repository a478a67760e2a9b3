//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const passingSimulator = `#!/bin/sh
echo "Sim Speed: 1000 CPS"
printf 'metric,value,unit\nsim_speed,2000,cps\n' > metrics.csv
`

// project lays out a simulator project root with one sweep config and a
// targets file naming the fake simulator.
func project(t *testing.T, script string) (dir, targets string) {
	t.Helper()
	dir = t.TempDir()
	mustWrite(t, filepath.Join(dir, "config", "base", "host.json"), `{"queue_depth": 1}`, 0o644)
	mustWrite(t, filepath.Join(dir, "config", "sweeps", "queue_depth_sweep.json"),
		`{"base_config": "config/base", "parameter": "queue_depth", "start": 4, "end": 8, "step": 4, "config_file": "host.json"}`, 0o644)
	mustWrite(t, filepath.Join(dir, "fake_sim"), script, 0o755)
	targets = filepath.Join(dir, "targets.yaml")
	mustWrite(t, targets, "fake:\n  executable: ./fake_sim\n  description: fake simulator\n  timeout: 10s\n", 0o644)
	return dir, targets
}

func mustWrite(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := execute(context.Background(), append(args, "--log-level", "error"))
	return code, out.String()
}

func TestSweepCommandPasses(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	t.Setenv("SIMSWEEP_RESULTS_DIR", "")
	dir, targets := project(t, passingSimulator)

	code, out := runCLI(t, "sweep", "queue_depth", "--work-dir", dir, "--targets", targets, "--target", "fake", "--no-build")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	if !strings.Contains(out, "Results available in: ") {
		t.Fatalf("expected results directory in output: %s", out)
	}
	batches, err := filepath.Glob(filepath.Join(dir, "regression_runs", "*queue_depth_sweep*", "sweep_results.csv"))
	if err != nil || len(batches) != 1 {
		t.Fatalf("expected one batch csv, got %v (%v)", batches, err)
	}
}

func TestSweepCommandFailedRuns(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	t.Setenv("SIMSWEEP_RESULTS_DIR", "")
	dir, targets := project(t, "#!/bin/sh\nexit 3\n")

	code, out := runCLI(t, "sweep", "queue_depth", "--work-dir", dir, "--targets", targets, "--target", "fake", "--no-build")
	if code != exitFailedRuns {
		t.Fatalf("expected exit %d, got %d: %s", exitFailedRuns, code, out)
	}
}

func TestSweepCommandUnknownConfig(t *testing.T) {
	dir, targets := project(t, passingSimulator)

	code, out := runCLI(t, "sweep", "missing", "--work-dir", dir, "--targets", targets, "--target", "fake", "--no-build")
	if code != exitFatal {
		t.Fatalf("expected exit %d, got %d", exitFatal, code)
	}
	if !strings.Contains(out, "queue_depth_sweep.json") {
		t.Fatalf("expected available configs to be listed: %s", out)
	}
}

func TestRunCommand(t *testing.T) {
	dir, targets := project(t, passingSimulator)

	code, out := runCLI(t, "run", "fake", "--work-dir", dir, "--targets", targets, "--quiet")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	var sum struct {
		State   string              `json:"state"`
		Metrics map[string]*float64 `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if sum.State != "completed" {
		t.Fatalf("expected completed, got %q", sum.State)
	}
	if v := sum.Metrics["throughput_cps"]; v == nil || *v != 2000 {
		t.Fatalf("expected throughput 2000 from metrics.csv, got %v", v)
	}
}

func TestConfigsCommand(t *testing.T) {
	dir, targets := project(t, passingSimulator)

	code, out := runCLI(t, "configs", "--work-dir", dir, "--targets", targets)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	for _, want := range []string{"queue_depth_sweep.json", "fake", "sim_ssd"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestDashboardCommand(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "greptime")
	dir := t.TempDir()

	code, out := runCLI(t, "dashboard", "--out", dir)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "grafana-dashboard.json")); err != nil {
		t.Fatalf("dashboard not rendered: %v", err)
	}
}
