// Package sweep runs a parameter sweep: one simulator invocation per variant,
// strictly in sequence, each in its own run directory.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"simsweep/internal/config"
	"simsweep/internal/docvalue"
	"simsweep/internal/metrics"
	"simsweep/internal/runerrors"
	"simsweep/internal/supervisor"
)

const (
	DefaultResultsRoot  = "regression_runs"
	DefaultBuildTimeout = 10 * time.Minute
)

// Artifacts the simulator leaves in its working directory.
var (
	passArtifacts   = []string{metrics.DefaultCSVFile, metrics.DefaultDocumentFile}
	alwaysArtifacts = []string{"*.vcd*"}
)

// ResultWriter receives every finished run.
type ResultWriter interface {
	WriteResult(run TestCaseRun) error
}

// ReportWriter renders the batch outputs once the last variant finished.
type ReportWriter interface {
	WriteReport(rep *Report) error
}

// Report summarises a batch.
type Report struct {
	ID         string             `json:"id"`
	Batch      string             `json:"batch"`
	Dir        string             `json:"dir"`
	Config     config.SweepConfig `json:"config"`
	Target     config.Target      `json:"target"`
	Runs       []TestCaseRun      `json:"runs"`
	Passed     int                `json:"passed"`
	Failed     int                `json:"failed"`
	TimedOut   int                `json:"timed_out"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

func (r *Report) add(run TestCaseRun) {
	r.Runs = append(r.Runs, run)
	switch run.Status() {
	case Passed:
		r.Passed++
	case TimedOut:
		r.TimedOut++
	default:
		r.Failed++
	}
}

// Total is the number of runs in the batch.
func (r *Report) Total() int { return len(r.Runs) }

// OK reports whether every run passed.
func (r *Report) OK() bool { return r.Passed == len(r.Runs) }

// Options configure an Orchestrator. Zero values select defaults.
type Options struct {
	// ResultsRoot holds one directory per batch.
	ResultsRoot string
	// BatchName overrides the config file stem.
	BatchName string
	// WorkDir is where the simulator runs, builds happen and artifacts appear.
	WorkDir      string
	Build        bool
	BuildTimeout time.Duration
	Log          *slog.Logger
	Supervisor   *supervisor.Supervisor
	Reader       *metrics.Reader
	Writers      []ResultWriter
	Reporter     ReportWriter
	Now          func() time.Time
}

// Orchestrator drives one batch.
type Orchestrator struct {
	cfg    config.SweepConfig
	target config.Target
	opts   Options
	log    *slog.Logger
}

// NewOrchestrator creates an Orchestrator for cfg running target.
func NewOrchestrator(cfg config.SweepConfig, target config.Target, opts Options) *Orchestrator {
	if opts.ResultsRoot == "" {
		opts.ResultsRoot = DefaultResultsRoot
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Supervisor == nil {
		opts.Supervisor = supervisor.New(opts.Log)
	}
	if opts.Reader == nil {
		opts.Reader = metrics.NewReader(opts.Log)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BatchName == "" {
		opts.BatchName = cfg.Name()
	}
	return &Orchestrator{
		cfg:    cfg,
		target: target,
		opts:   opts,
		log:    opts.Log.With("batch", opts.BatchName, "target", target.Name),
	}
}

// Run executes the batch. Per-variant failures are recorded in the report;
// configuration, build and process leak errors end the batch early and are
// returned together with the runs completed so far.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	variants, err := GenerateVariants(o.cfg.Parameter, o.cfg.Start, o.cfg.End, o.cfg.Step)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(o.cfg.BaseConfig); err != nil || !info.IsDir() {
		return nil, &runerrors.ErrConfig{Path: o.cfg.BaseConfig, Reason: "base configuration directory not found", Err: err}
	}
	exe, err := o.executable()
	if err != nil {
		return nil, err
	}

	if o.opts.Build {
		if err := Build(ctx, o.opts.Supervisor, o.target, o.opts.WorkDir, o.opts.BuildTimeout, o.log); err != nil {
			return nil, err
		}
	}

	started := o.opts.Now()
	batch := BatchDirName(started, o.opts.BatchName)
	dir := filepath.Join(o.opts.ResultsRoot, batch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create batch directory")
	}
	if o.cfg.Path != "" {
		if err := copyFile(o.cfg.Path, filepath.Join(dir, filepath.Base(o.cfg.Path))); err != nil {
			o.log.Warn("could not copy sweep config into batch", "err", err)
		}
	}

	rep := &Report{
		ID:        uuid.NewString(),
		Batch:     batch,
		Dir:       dir,
		Config:    o.cfg,
		Target:    o.target,
		StartedAt: started,
	}
	o.log.Info("sweep started", "dir", dir, "parameter", o.cfg.Parameter, "variants", len(variants))

	var fatal error
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}
		run, err := o.runVariant(ctx, exe, batch, dir, v)
		if run != nil {
			rep.add(*run)
			o.emit(*run)
		}
		if err != nil {
			fatal = err
			break
		}
	}
	rep.FinishedAt = o.opts.Now()

	if o.opts.Reporter != nil {
		if err := o.opts.Reporter.WriteReport(rep); err != nil {
			o.log.Error("writing batch report failed", "err", err)
			if fatal == nil {
				fatal = errors.Wrap(err, "write batch report")
			}
		}
	}
	o.log.Info("sweep finished", "passed", rep.Passed, "failed", rep.Failed, "timed_out", rep.TimedOut,
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt))
	return rep, fatal
}

func (o *Orchestrator) executable() (string, error) {
	exe := o.target.Executable
	if exe == "" {
		return "", &runerrors.ErrConfig{Reason: fmt.Sprintf("target %q has no executable", o.target.Name)}
	}
	// bare names are looked up on PATH; relative paths are relative to WorkDir
	if !filepath.IsAbs(exe) && strings.ContainsAny(exe, `/\`) {
		abs, err := filepath.Abs(filepath.Join(o.opts.WorkDir, exe))
		if err != nil {
			return "", err
		}
		exe = abs
	}
	return exe, nil
}

func (o *Orchestrator) runVariant(ctx context.Context, exe, batch, batchDir string, v ParameterVariant) (*TestCaseRun, error) {
	log := o.log.With("test_case", v.Name(), "value", v.ValueString())
	dir, err := filepath.Abs(filepath.Join(batchDir, v.Name()))
	if err != nil {
		return nil, err
	}
	run := NewRun(batch, v, dir)

	if err := o.prepare(run, log); err != nil {
		// the run directory could not be set up; the variant never starts
		_ = run.Start(o.opts.Now())
		run.Err = err
		_ = run.Finish(Failed, o.opts.Now())
		o.writeResult(run, log)
		return run, nil
	}

	if removed, err := removeStale(o.opts.WorkDir, passArtifacts); err != nil {
		run.Err = errors.Wrap(err, "clear stale metric artifacts")
		_ = run.Start(o.opts.Now())
		_ = run.Finish(Failed, o.opts.Now())
		o.writeResult(run, log)
		return run, nil
	} else if len(removed) > 0 {
		log.Warn("removed stale metric artifacts from working directory", "files", removed)
	}

	if err := run.Start(o.opts.Now()); err != nil {
		return run, err
	}
	log.Info("running test case", "dir", dir)

	p, err := o.opts.Supervisor.Start(ctx, supervisor.Command{
		Path:    exe,
		Args:    []string{dir},
		Dir:     o.opts.WorkDir,
		Timeout: o.target.Timeout,
	})
	if err != nil {
		run.Err = err
		o.collect(run, Failed, "", log)
		return run, nil
	}
	// an interrupted batch stops the running simulator as well
	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := p.Stop(); err != nil {
				log.Error("stopping interrupted test case failed", "err", err)
			}
		case <-waited:
		}
	}()
	state, leak := p.Wait(0)
	close(waited)
	res := p.Result()
	run.ExitCode = res.ExitCode

	status := Failed
	switch state {
	case supervisor.Completed:
		status = Passed
	case supervisor.TimedOut:
		status = TimedOut
	}
	run.Err = res.Err
	if leak != nil {
		run.Err = leak
	}
	o.collect(run, status, p.Output(), log)
	return run, leak
}

// prepare creates the run directory from the template and applies the
// variant's parameter value.
func (o *Orchestrator) prepare(run *TestCaseRun, log *slog.Logger) error {
	if err := os.MkdirAll(run.Dir, 0o755); err != nil {
		return errors.Wrap(err, "create run directory")
	}
	if err := copyTemplate(o.cfg.BaseConfig, run.Dir); err != nil {
		return errors.Wrap(err, "copy base configuration")
	}

	target := filepath.Join(run.Dir, o.cfg.ConfigFile)
	if _, err := os.Stat(target); err != nil {
		log.Warn("target config file not found, running unmodified", "file", o.cfg.ConfigFile)
	} else {
		found, err := docvalue.UpdateFile(target, o.cfg.Parameter, run.Variant.Value)
		switch {
		case err != nil:
			log.Warn("could not modify config file", "file", target, "err", err)
		case !found:
			log.Warn("parameter not found in config file", "file", o.cfg.ConfigFile, "parameter", o.cfg.Parameter)
		}
	}

	return writeTemplate(filepath.Join(run.Dir, infoFile), infoTemplate, infoData{
		Name:       run.Name(),
		Parameter:  o.cfg.Parameter,
		Value:      run.Variant.ValueString(),
		Batch:      run.Batch,
		Generated:  formatTimestamp(o.opts.Now()),
		BaseConfig: o.cfg.BaseConfig,
		ConfigFile: o.cfg.ConfigFile,
	})
}

// collect relocates artifacts, resolves the record of a passed run and
// records the terminal status. Metric files of a run that did not pass are
// kept in its directory but never read.
func (o *Orchestrator) collect(run *TestCaseRun, status Status, output string, log *slog.Logger) {
	moved, err := relocate(o.opts.WorkDir, run.Dir, passArtifacts, alwaysArtifacts)
	if err != nil {
		log.Warn("artifact relocation incomplete", "err", err)
	}
	if len(moved) > 0 {
		log.Debug("artifacts relocated", "files", moved)
	}

	if status == Passed {
		rec, diag := o.opts.Reader.Read(metrics.Input{Dir: run.Dir, Output: output})
		run.Record = rec
		run.Provenance = make(map[string]string, len(diag.Provenance))
		for f, src := range diag.Provenance {
			run.Provenance[f.String()] = src
		}
	}
	if err := run.Finish(status, o.opts.Now()); err != nil {
		log.Error("run status not recorded", "err", err)
	}
	variantsCounter.WithLabelValues(status.String()).Inc()
	variantDuration.Observe(run.Duration().Seconds())
	o.writeResult(run, log)
}

func (o *Orchestrator) writeResult(run *TestCaseRun, log *slog.Logger) {
	data := resultData{
		Name:      run.Name(),
		Parameter: o.cfg.Parameter,
		Value:     run.Variant.ValueString(),
		Batch:     run.Batch,
		Status:    run.Status().String(),
		Duration:  fmt.Sprintf("%ds", int(run.Duration().Seconds())),
		Timestamp: formatTimestamp(o.opts.Now()),
		Dir:       run.Dir,
	}
	if run.Err != nil {
		data.Error = run.Err.Error()
	}
	if err := writeTemplate(filepath.Join(run.Dir, resultFile), resultTemplate, data); err != nil {
		log.Warn("could not write result file", "err", err)
	}
	log.Info("test case finished", "status", run.Status(), "duration", run.Duration(), "resolved_fields", run.Record.Resolved())
}

func (o *Orchestrator) emit(run TestCaseRun) {
	for _, w := range o.opts.Writers {
		if err := w.WriteResult(run); err != nil {
			o.log.Warn("result writer failed", "test_case", run.Name(), "err", err)
		}
	}
}
