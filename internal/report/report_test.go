package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"simsweep/internal/config"
	"simsweep/internal/logging"
	"simsweep/internal/metrics"
	"simsweep/internal/sweep"
)

func finishedRun(t *testing.T, dir string, idx int, value float64, status sweep.Status, rec metrics.Record) sweep.TestCaseRun {
	t.Helper()
	v := sweep.ParameterVariant{Index: idx, Parameter: "queue_depth", Value: value}
	run := sweep.NewRun("20240102_030405_qd", v, filepath.Join(dir, v.Name()))
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := run.Start(start); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := run.Finish(status, start.Add(3*time.Second)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	run.Record = rec
	return *run
}

func testReport(t *testing.T) *sweep.Report {
	dir := t.TempDir()
	var rec metrics.Record
	rec.Set(metrics.Throughput, 1500)
	rec.Set(metrics.LatencyAvg, 0)
	rec.Set(metrics.Bandwidth, 12.5)

	rep := &sweep.Report{
		Batch: "20240102_030405_qd",
		Dir:   dir,
		Config: config.SweepConfig{
			BaseConfig: "config/base", Parameter: "queue_depth",
			Start: 4, End: 8, Step: 4, ConfigFile: "host.json",
		},
		Target:     config.Target{Name: "sim", Executable: "./sim"},
		Runs:       []sweep.TestCaseRun{},
		StartedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2024, 1, 2, 3, 5, 0, 0, time.UTC),
	}
	rep.Runs = append(rep.Runs,
		finishedRun(t, dir, 0, 4, sweep.Passed, rec),
		finishedRun(t, dir, 1, 8, sweep.TimedOut, metrics.Record{}),
	)
	rep.Passed, rep.TimedOut = 1, 1
	return rep
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testReport(t)); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	header := "TestCase,queue_depth,SimSpeed_CPS,SimTime_MS,Latency_Avg_NS,Latency_P50_NS,Latency_P95_NS," +
		"Latency_P99_NS,Latency_StdDev_NS,BW_MBPS,Traffic_Total,Traffic_Sent,Traffic_Completed," +
		"Traffic_Completion_Rate,Status"
	if got := strings.Join(rows[0], ","); got != header {
		t.Fatalf("unexpected header: %s", got)
	}
	want := []string{"TC001", "4", "1500", "", "0", "", "", "", "", "12.5", "", "", "", "", "PASSED"}
	if !slices.Equal(rows[1], want) {
		t.Fatalf("expected row %v, got %v", want, rows[1])
	}
	if rows[2][14] != "TIMEOUT" {
		t.Fatalf("expected TIMEOUT status, got %s", rows[2][14])
	}
	if rows[2][2] != "" {
		t.Fatalf("unresolved metrics should be empty, got %q", rows[2][2])
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, testReport(t)); err != nil {
		t.Fatalf("render summary: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Parameter Range: 4 to 8 (step 4)",
		"Total Test Cases: 2\nPassed: 1\nFailed: 1\nTimed Out: 1",
		"  TC001 (queue_depth=4): 1500 cps (n/a ms, 0 ns avg, p95=n/a ns, 12.5 MB/s)\n",
		"  TC002 (queue_depth=8): TIMEOUT\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected summary to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\nOverall Status: FAILED\n") {
		t.Fatalf("expected FAILED overall status, got:\n%s", out)
	}
}

func TestRenderScript(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderScript(&buf, testReport(t)); err != nil {
		t.Fatalf("render script: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	if lines[0] != "#!/bin/bash" {
		t.Fatalf("expected shebang, got %q", lines[0])
	}
	if len(lines) < 2 {
		t.Fatalf("expected command lines, got %v", lines)
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "./sim ") || !strings.HasSuffix(last, "TC002  # queue_depth=8") {
		t.Fatalf("unexpected last command: %s", last)
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"./sim":              "./sim",
		"/tmp/my runs/TC001": "'/tmp/my runs/TC001'",
		"it's":               `'it'\''s'`,
		"":                   "''",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Fatalf("shellQuote(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestWriteReportFiles(t *testing.T) {
	rep := testReport(t)
	var printed bytes.Buffer
	if err := NewWriter(logging.Discard(), &printed).WriteReport(rep); err != nil {
		t.Fatalf("write report: %v", err)
	}

	for _, name := range []string{CSVFile, SummaryFile, ScriptFile, JSONFile} {
		if _, err := os.Stat(filepath.Join(rep.Dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	info, err := os.Stat(filepath.Join(rep.Dir, ScriptFile))
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("expected script mode 0755, got %v", info.Mode().Perm())
	}
	if !strings.Contains(printed.String(), "Parameter Sweep Summary") {
		t.Fatalf("expected printed summary, got:\n%s", printed.String())
	}

	data, err := os.ReadFile(filepath.Join(rep.Dir, JSONFile))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded struct {
		Batch string `json:"batch"`
		Runs  []struct {
			TestCase string         `json:"test_case"`
			Status   string         `json:"status"`
			Metrics  map[string]any `json:"metrics"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(decoded.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(decoded.Runs))
	}
	if decoded.Runs[1].Status != "TIMEOUT" {
		t.Fatalf("expected TIMEOUT, got %s", decoded.Runs[1].Status)
	}
	if decoded.Runs[0].Metrics["throughput_cps"] != 1500.0 {
		t.Fatalf("expected throughput 1500, got %v", decoded.Runs[0].Metrics["throughput_cps"])
	}
	if v, ok := decoded.Runs[0].Metrics["sim_time_ms"]; ok && v != nil {
		t.Fatalf("expected unresolved sim_time_ms, got %v", v)
	}
}
