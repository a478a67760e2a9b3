// Package controller drives the simulator interactively: one foreground
// simulation or sweep at a time, builds, and the configuration files the
// monitor exposes.
package controller

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"simsweep/internal/broadcast"
	"simsweep/internal/config"
	"simsweep/internal/report"
	"simsweep/internal/runerrors"
	"simsweep/internal/supervisor"
	"simsweep/internal/sweep"
)

const (
	DefaultType      = "web_test"
	DefaultConfigDir = "config/base"

	TemplatesDir = "config/templates"
	RuntimeDir   = "config/runtime"

	// SweepConfigName is the runtime file a launched sweep is written to.
	SweepConfigName = "web_sweep"

	DefaultLogLines = 100
	statusLogLines  = 10
	recentResults   = 5
)

var (
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("no simulation running")
	// ErrConfigNotFound is returned for unknown configuration names.
	ErrConfigNotFound = errors.New("configuration not found")
)

// Publisher receives control events for connected observers.
type Publisher interface {
	Publish(event string, payload any) error
}

// Options configure a Controller. Zero values select defaults.
type Options struct {
	// BaseDir is the simulator project root: executables, Makefile and
	// config/ live here and processes run here.
	BaseDir string
	// ResultsDir holds sweep batches; relative paths are under BaseDir.
	ResultsDir string
	Targets    map[string]config.Target
	// MetricsFile is the live snapshot file, removed before each start.
	MetricsFile string
	// SelfPath is the binary whose sweep subcommand runs launched sweeps.
	SelfPath     string
	BuildTimeout time.Duration
	Publisher    Publisher
	Supervisor   *supervisor.Supervisor
	Log          *slog.Logger
}

// Controller owns the interactive foreground process.
type Controller struct {
	opts    Options
	log     *slog.Logger
	sup     *supervisor.Supervisor
	builder *supervisor.Supervisor

	mu   sync.Mutex
	kind string
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	if opts.ResultsDir == "" {
		opts.ResultsDir = sweep.DefaultResultsRoot
	}
	if !filepath.IsAbs(opts.ResultsDir) {
		opts.ResultsDir = filepath.Join(opts.BaseDir, opts.ResultsDir)
	}
	if opts.Targets == nil {
		opts.Targets = config.DefaultTargets()
	}
	if opts.MetricsFile == "" {
		opts.MetricsFile = broadcast.DefaultMetricsFile
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Supervisor == nil {
		opts.Supervisor = supervisor.New(opts.Log)
	}
	return &Controller{
		opts:    opts,
		log:     opts.Log.With("component", "controller"),
		sup:     opts.Supervisor,
		builder: supervisor.New(opts.Log),
	}
}

// StartRequest selects what to run.
type StartRequest struct {
	Type      string `json:"type"`
	ConfigDir string `json:"config_dir"`
}

// Result reports the outcome of a control operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

func failed(msg string, err error) (Result, error) {
	return Result{Message: msg + ": " + err.Error()}, err
}

func (c *Controller) target(name string) (config.Target, error) {
	if name == "" {
		name = DefaultType
	}
	t, ok := c.opts.Targets[name]
	if !ok {
		return config.Target{}, &runerrors.ErrConfig{Reason: "unknown simulation type " + name}
	}
	return t, nil
}

func (c *Controller) executable(t config.Target) string {
	exe := t.Executable
	if filepath.IsAbs(exe) || !strings.ContainsAny(exe, `/\`) {
		return exe
	}
	if abs, err := filepath.Abs(filepath.Join(c.opts.BaseDir, exe)); err == nil {
		return abs
	}
	return exe
}

// Start launches the simulator for req. Only one simulation or sweep runs at
// a time.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Result, error) {
	t, err := c.target(req.Type)
	if err != nil {
		return failed("failed to start simulation", err)
	}
	configDir := req.ConfigDir
	if configDir == "" {
		configDir = DefaultConfigDir
	}
	if err := os.Remove(c.opts.MetricsFile); err != nil && !os.IsNotExist(err) {
		c.log.Warn("could not clear metrics file", "file", c.opts.MetricsFile, "err", err)
	}
	return c.launch(ctx, "simulation", "Simulation", broadcast.EventSimulationStarted, supervisor.Command{
		Path: c.executable(t),
		Args: []string{configDir},
		Dir:  c.opts.BaseDir,
	})
}

func (c *Controller) launch(ctx context.Context, kind, label, event string, cmd supervisor.Command) (Result, error) {
	p, err := c.sup.Start(ctx, cmd)
	if errors.Is(err, supervisor.ErrBusy) {
		return Result{Message: "Simulation already running"}, err
	}
	if err != nil {
		return failed("failed to start "+kind, err)
	}
	c.mu.Lock()
	c.kind = kind
	c.mu.Unlock()

	res := Result{
		Success: true,
		Message: label + " started with PID " + strconv.Itoa(p.PID()),
		PID:     p.PID(),
		Command: strings.Join(append([]string{cmd.Path}, cmd.Args...), " "),
	}
	c.log.Info(kind+" started", "pid", res.PID, "command", res.Command)
	c.publish(event, res)
	return res, nil
}

func (c *Controller) publish(event string, payload any) {
	if c.opts.Publisher == nil {
		return
	}
	if err := c.opts.Publisher.Publish(event, payload); err != nil {
		c.log.Warn("event not published", "event", event, "err", err)
	}
}

// Stop terminates the foreground process.
func (c *Controller) Stop() (Result, error) {
	p := c.sup.Current()
	if p == nil || p.State().Terminal() {
		return Result{Message: "No simulation running"}, ErrNotRunning
	}
	if err := p.Stop(); err != nil {
		c.log.Error("simulation did not stop", "pid", p.PID(), "err", err)
		return failed("error stopping simulation", err)
	}
	res := Result{Success: true, Message: "Simulation stopped", PID: p.PID()}
	c.publish(broadcast.EventSimulationStopped, res)
	return res, nil
}

// Status describes the foreground process.
type Status struct {
	Status         string   `json:"status"`
	Kind           string   `json:"kind,omitempty"`
	PID            int      `json:"pid,omitempty"`
	ExitCode       *int     `json:"exit_code,omitempty"`
	LogLines       int      `json:"log_lines"`
	RecentLog      []string `json:"recent_log"`
	RuntimeSeconds float64  `json:"runtime_seconds,omitempty"`
}

// Status reports the state of the current or most recent process.
func (c *Controller) Status() Status {
	p := c.sup.Current()
	if p == nil {
		return Status{Status: supervisor.Idle.String(), RecentLog: []string{}}
	}
	c.mu.Lock()
	kind := c.kind
	c.mu.Unlock()

	res := p.Result()
	st := Status{
		Status:    res.State.String(),
		Kind:      kind,
		PID:       p.PID(),
		LogLines:  p.Lines(),
		RecentLog: p.Tail(statusLogLines),
	}
	if res.State.Terminal() {
		if res.ExitCode >= 0 {
			code := res.ExitCode
			st.ExitCode = &code
		}
		st.RuntimeSeconds = res.Duration().Seconds()
	} else if !res.StartedAt.IsZero() {
		st.RuntimeSeconds = time.Since(res.StartedAt).Seconds()
	}
	return st
}

// LogView is the tail of the captured output.
type LogView struct {
	TotalLines int      `json:"total_lines"`
	LogLines   []string `json:"log_lines"`
}

// Log returns up to n of the newest output lines.
func (c *Controller) Log(n int) LogView {
	if n <= 0 {
		n = DefaultLogLines
	}
	p := c.sup.Current()
	if p == nil {
		return LogView{LogLines: []string{}}
	}
	return LogView{TotalLines: p.Lines(), LogLines: p.Tail(n)}
}

// Build compiles a target. Builds are serialised but independent of the
// foreground process.
func (c *Controller) Build(ctx context.Context, name string) (Result, error) {
	t, err := c.target(name)
	if err != nil {
		return failed("build error", err)
	}
	err = sweep.Build(ctx, c.builder, t, c.opts.BaseDir, c.opts.BuildTimeout, c.log.With("target", t.Name))
	var be *runerrors.ErrBuild
	switch {
	case errors.As(err, &be):
		return Result{Message: be.Error(), Output: be.Output}, err
	case errors.Is(err, supervisor.ErrBusy):
		return Result{Message: "Build already running"}, err
	case err != nil:
		return failed("build error", err)
	}
	return Result{Success: true, Message: "Build successful for " + t.Name}, nil
}

// Sweep validates a sweep configuration, stores it as the runtime sweep file
// and runs it through this binary's sweep command as the foreground process.
func (c *Controller) Sweep(ctx context.Context, data []byte) (Result, error) {
	name := SweepConfigName + ".json"
	if err := config.ValidateWithCue(name, data, config.SweepSchema()); err != nil {
		return failed("invalid sweep configuration", &runerrors.ErrConfig{Path: name, Err: err})
	}
	path, err := c.writeRuntime(SweepConfigName, data)
	if err != nil {
		return failed("failed to start sweep", err)
	}
	self := c.opts.SelfPath
	if self == "" {
		if self, err = os.Executable(); err != nil {
			return failed("failed to start sweep", err)
		}
	}
	return c.launch(ctx, "sweep", "Parameter sweep", broadcast.EventSweepStarted, supervisor.Command{
		Path: self,
		Args: []string{"sweep", path, "--results-dir", c.opts.ResultsDir},
		Dir:  c.opts.BaseDir,
	})
}

// BatchSummary describes one finished sweep batch.
type BatchSummary struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	TestCases int    `json:"test_cases"`
	Path      string `json:"path"`
}

// RecentResults lists the most recent batches that produced a results table.
func (c *Controller) RecentResults() ([]BatchSummary, error) {
	entries, err := os.ReadDir(c.opts.ResultsDir)
	if os.IsNotExist(err) {
		return []BatchSummary{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list results")
	}
	// batch directories start with their timestamp
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })

	out := []BatchSummary{}
	for _, e := range entries {
		if len(out) == recentResults {
			break
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.opts.ResultsDir, e.Name())
		n, err := countRows(filepath.Join(dir, report.CSVFile))
		if os.IsNotExist(errors.Cause(err)) {
			continue
		}
		if err != nil {
			c.log.Warn("unreadable batch results", "dir", dir, "err", err)
			continue
		}
		out = append(out, BatchSummary{Name: e.Name(), Type: "sweep", TestCases: n, Path: dir})
	}
	return out, nil
}

// countRows counts the data rows of a results table.
func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	n := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, path)
		}
		n++
	}
	if n > 0 {
		n-- // header
	}
	return n, nil
}

