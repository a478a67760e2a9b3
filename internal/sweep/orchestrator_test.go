//go:build !windows

package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simsweep/internal/config"
	"simsweep/internal/logging"
	"simsweep/internal/metrics"
	"simsweep/internal/runerrors"
)

// fakeSimulator hangs for queue_depth 8 and otherwise writes a metrics file
// and a waveform into its working directory.
const fakeSimulator = `#!/bin/sh
dir="$1"
if grep -q '"queue_depth": 8' "$dir/host.json"; then
  sleep 30
fi
echo "Sim Speed: 1000 CPS"
echo "Simulation time: 5 ms"
printf 'metric,value,unit\nsim_speed,2000,cps\n' > metrics.csv
touch trace.vcd
exit 0
`

type recordingWriter struct {
	mu   sync.Mutex
	runs []TestCaseRun
}

func (w *recordingWriter) WriteResult(run TestCaseRun) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = append(w.runs, run)
	return nil
}

type recordingReporter struct{ reports []*Report }

func (r *recordingReporter) WriteReport(rep *Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

type fixture struct {
	root    string
	work    string
	results string
	cfg     config.SweepConfig
	target  config.Target
}

func newFixture(t *testing.T, script string) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		root:    root,
		work:    filepath.Join(root, "work"),
		results: filepath.Join(root, "regression_runs"),
	}
	base := filepath.Join(root, "config", "base")
	for _, d := range []string{f.work, filepath.Join(base, "sweeps"), filepath.Join(base, "sub")} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	write := func(p, content string, mode os.FileMode) {
		require.NoError(t, os.WriteFile(p, []byte(content), mode))
	}
	write(filepath.Join(base, "host.json"), `{"host": {"queue_depth": 1, "name": "h"}}`, 0o644)
	write(filepath.Join(base, "old.log"), "stale", 0o644)
	write(filepath.Join(base, "sweeps", "ignored.json"), "{}", 0o644)
	write(filepath.Join(base, "sub", "memory.json"), `{"banks": 4}`, 0o644)
	write(filepath.Join(f.work, "fake_sim"), script, 0o755)

	cfgPath := filepath.Join(root, "qd.json")
	write(cfgPath, `{"parameter": "queue_depth"}`, 0o644)
	f.cfg = config.SweepConfig{
		BaseConfig: base,
		Parameter:  "queue_depth",
		Start:      4,
		End:        20,
		Step:       4,
		ConfigFile: "host.json",
		Path:       cfgPath,
	}
	f.target = config.Target{Name: "fake", Executable: "./fake_sim", Timeout: time.Second}
	return f
}

func TestOrchestratorTimeoutDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, fakeSimulator)
	writer := &recordingWriter{}
	reporter := &recordingReporter{}
	o := NewOrchestrator(f.cfg, f.target, Options{
		ResultsRoot: f.results,
		WorkDir:     f.work,
		Log:         logging.Discard(),
		Writers:     []ResultWriter{writer},
		Reporter:    reporter,
	})

	rep, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Runs, 5)
	assert.Equal(t, 4, rep.Passed)
	assert.Equal(t, 1, rep.TimedOut)
	assert.Equal(t, 0, rep.Failed)
	assert.False(t, rep.OK())

	want := []Status{Passed, TimedOut, Passed, Passed, Passed}
	for i, run := range rep.Runs {
		assert.Equal(t, want[i], run.Status(), run.Name())
		assert.Equal(t, i, run.Variant.Index)
	}
	assert.Len(t, writer.runs, 5)
	require.Len(t, reporter.reports, 1)
	assert.True(t, strings.HasSuffix(rep.Dir, "_qd"))

	first := rep.Runs[0]
	assert.Equal(t, metrics.Set(2000), first.Record.Throughput, "metrics file beats console output")
	assert.Equal(t, metrics.Set(5), first.Record.SimTime)
	assert.Equal(t, "console_output", first.Provenance["sim_time_ms"])
	assert.False(t, rep.Runs[1].Record.Throughput.OK)
	var timeout *runerrors.ErrRunTimeout
	assert.True(t, errors.As(rep.Runs[1].Err, &timeout))

	tc1 := filepath.Join(rep.Dir, "TC001")
	assert.FileExists(t, filepath.Join(tc1, "metrics.csv"))
	assert.FileExists(t, filepath.Join(tc1, "trace.vcd"))
	assert.FileExists(t, filepath.Join(tc1, "sub", "memory.json"))
	assert.NoFileExists(t, filepath.Join(tc1, "old.log"))
	assert.NoDirExists(t, filepath.Join(tc1, "sweeps"))
	assert.NoFileExists(t, filepath.Join(f.work, "metrics.csv"))
	assert.FileExists(t, filepath.Join(rep.Dir, "qd.json"))

	var host map[string]map[string]any
	data, err := os.ReadFile(filepath.Join(tc1, "host.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &host))
	assert.Equal(t, 4.0, host["host"]["queue_depth"])

	info, err := os.ReadFile(filepath.Join(tc1, "TC_INFO.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "Value: 4\n")
	assert.Contains(t, string(info), "Modified File: host.json")

	result, err := os.ReadFile(filepath.Join(rep.Dir, "TC002", "TC_RESULT.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(result), "Status: TIMEOUT")
	assert.Contains(t, string(result), "Parameter: queue_depth = 8")
}

func TestOrchestratorFailedVariant(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\necho boom\nexit 2\n")
	f.cfg.End = 8
	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()})

	rep, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Runs, 2)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 2, rep.Runs[0].ExitCode)
	assert.Equal(t, 0, rep.Runs[0].Record.Resolved())
}

func TestOrchestratorMissingTargetFileContinues(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nexit 0\n")
	f.cfg.ConfigFile = "absent.json"
	f.cfg.End = 4
	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()})

	rep, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Passed)
}

func TestOrchestratorConfigErrors(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nexit 0\n")

	bad := f.cfg
	bad.Step = 0
	_, err := NewOrchestrator(bad, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()}).Run(context.Background())
	assert.True(t, runerrors.IsFatal(err))

	bad = f.cfg
	bad.BaseConfig = filepath.Join(f.root, "nope")
	_, err = NewOrchestrator(bad, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()}).Run(context.Background())
	assert.True(t, runerrors.IsFatal(err))
	assert.NoDirExists(t, f.results)
}

func TestOrchestratorBuildFailure(t *testing.T) {
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not installed")
	}
	f := newFixture(t, "#!/bin/sh\nexit 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(f.work, "Makefile"), []byte("all:\n\t@echo compiling\n\t@false\n"), 0o644))

	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard(), Build: true})
	_, err := o.Run(context.Background())
	var buildErr *runerrors.ErrBuild
	require.True(t, errors.As(err, &buildErr), "got %v", err)
	assert.Contains(t, buildErr.Output, "compiling")
	assert.NoDirExists(t, f.results)
}

func TestOrchestratorCancelled(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nsleep 30\n")
	f.target.Timeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()})

	time.AfterFunc(300*time.Millisecond, cancel)
	start := time.Now()
	rep, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, rep.Runs, 1)
	assert.Equal(t, Failed, rep.Runs[0].Status())
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestFailedRunMetricsNotInherited(t *testing.T) {
	f := newFixture(t, `#!/bin/sh
if grep -q '"queue_depth": 4' "$1/host.json"; then
  printf 'metric,value,unit\nsim_speed,9999,cps\n' > metrics.csv
  exit 1
fi
exit 0
`)
	f.cfg.End = 8
	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()})

	rep, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Runs, 2)
	assert.Equal(t, Failed, rep.Runs[0].Status())
	assert.False(t, rep.Runs[0].Record.Throughput.OK)

	second := rep.Runs[1]
	assert.Equal(t, Passed, second.Status())
	assert.False(t, second.Record.Throughput.OK, "passed run credited with an earlier run's metrics")
	assert.Empty(t, second.Provenance)

	// the failed run keeps its own file for inspection
	assert.FileExists(t, filepath.Join(rep.Dir, "TC001", "metrics.csv"))
	assert.NoFileExists(t, filepath.Join(rep.Dir, "TC002", "metrics.csv"))
}

func TestStaleMetricsRemovedBeforeRun(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nexit 0\n")
	f.cfg.End = 4
	require.NoError(t, os.WriteFile(filepath.Join(f.work, "metrics.csv"), []byte("metric,value,unit\nsim_speed,1,cps\n"), 0o644))
	o := NewOrchestrator(f.cfg, f.target, Options{ResultsRoot: f.results, WorkDir: f.work, Log: logging.Discard()})

	rep, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Runs, 1)
	assert.Equal(t, Passed, rep.Runs[0].Status())
	assert.False(t, rep.Runs[0].Record.Throughput.OK)
	assert.NoFileExists(t, filepath.Join(f.work, "metrics.csv"))
}
