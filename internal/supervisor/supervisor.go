// Package supervisor runs one external process at a time with bounded output
// capture, timeout-bounded waiting and graceful-then-forced termination.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"simsweep/internal/runerrors"
)

const (
	DefaultGrace    = 5 * time.Second
	DefaultKillWait = 2 * time.Second
	drainWait       = 2 * time.Second
)

// ErrBusy is returned by Start while another process is still active.
var ErrBusy = errors.New("supervisor: a process is already running")

// Command describes a process to spawn.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Echo, when set, also receives every output line as it is read.
	Echo io.Writer
}

func (c Command) name() string { return filepath.Base(c.Path) }

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithGrace sets how long Stop waits after the termination signal.
func WithGrace(d time.Duration) Option { return func(s *Supervisor) { s.grace = d } }

// WithKillWait sets how long Stop waits after the kill signal.
func WithKillWait(d time.Duration) Option { return func(s *Supervisor) { s.killWait = d } }

// WithMaxLines bounds the captured output per process.
func WithMaxLines(n int) Option { return func(s *Supervisor) { s.maxLines = n } }

// Supervisor owns at most one active process.
type Supervisor struct {
	log      *slog.Logger
	grace    time.Duration
	killWait time.Duration
	maxLines int

	mu      sync.Mutex
	current *Process
}

// New creates a Supervisor.
func New(log *slog.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{log: log, grace: DefaultGrace, killWait: DefaultKillWait, maxLines: DefaultMaxLines}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Current returns the most recently started process, or nil.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the state of the current process, or Idle.
func (s *Supervisor) State() State {
	if p := s.Current(); p != nil {
		return p.State()
	}
	return Idle
}

// Start spawns cmd. It fails with ErrBusy while the previous process is still
// alive, including while it is being stopped, and with the previous
// ErrProcessLeak once that process survived a kill.
func (s *Supervisor) Start(ctx context.Context, cmd Command) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.current.busy(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	p := &Process{
		spec:     cmd,
		log:      s.log.With("process", cmd.name()),
		grace:    s.grace,
		killWait: s.killWait,
		out:      NewLogBuffer(s.maxLines),
		state:    Starting,
		exitCode: -1,
		exited:   make(chan struct{}),
		drained:  make(chan struct{}),
		leaked:   make(chan struct{}),
	}
	s.current = p
	defer s.mu.Unlock()

	if err := p.start(); err != nil {
		return p, err
	}
	return p, nil
}

// Result is the outcome of a finished process.
type Result struct {
	State      State
	ExitCode   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time between start and the terminal transition.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Process is the handle of one spawned process.
type Process struct {
	spec     Command
	log      *slog.Logger
	grace    time.Duration
	killWait time.Duration
	out      *LogBuffer
	cmd      *exec.Cmd

	mu         sync.Mutex
	state      State
	pid        int
	exitCode   int
	err        error
	startedAt  time.Time
	finishedAt time.Time

	exited  chan struct{}
	drained chan struct{}
	// leaked is closed when the process survived termination
	leaked chan struct{}
	leak   error

	termMu   sync.Mutex
	termDone bool
	termErr  error
}

func (p *Process) start() error {
	r, w, err := os.Pipe()
	if err != nil {
		p.abort(err)
		return err
	}
	cmd := exec.Command(p.spec.Path, p.spec.Args...)
	cmd.Dir = p.spec.Dir
	if len(p.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), p.spec.Env...)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	setProcAttr(cmd)

	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		p.abort(err)
		return &runerrors.ErrRunFailure{Name: p.spec.name(), ExitCode: -1, Err: err}
	}
	// the child holds its own copy of the write end
	w.Close()
	p.cmd = cmd

	p.mu.Lock()
	p.state = Running
	p.pid = cmd.Process.Pid
	p.mu.Unlock()
	startsCounter.Inc()
	runningGauge.Inc()
	p.log.Info("process started", "pid", cmd.Process.Pid, "args", p.spec.Args, "dir", p.spec.Dir)

	go p.drain(r)
	go p.watch()
	return nil
}

func (p *Process) abort(err error) {
	close(p.exited)
	close(p.drained)
	p.finish(Failed, &runerrors.ErrRunFailure{Name: p.spec.name(), ExitCode: -1, Err: err})
}

func (p *Process) drain(r *os.File) {
	defer close(p.drained)
	defer r.Close()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			p.out.Append(line)
			if p.spec.Echo != nil {
				fmt.Fprintln(p.spec.Echo, line)
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) watch() {
	err := p.cmd.Wait()
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	runningGauge.Dec()

	if err == nil && code == 0 {
		p.finish(Completed, nil)
	} else {
		p.finish(Failed, &runerrors.ErrRunFailure{Name: p.spec.name(), ExitCode: code, Err: err})
	}
	close(p.exited)
}

// finish records the terminal state. The first caller wins.
func (p *Process) finish(state State, err error) bool {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.err = err
	p.finishedAt = time.Now()
	elapsed := p.finishedAt.Sub(p.startedAt)
	p.mu.Unlock()

	finishedCounter.WithLabelValues(state.String()).Inc()
	p.log.Info("process finished", "state", state, "elapsed", elapsed, "err", err)
	return true
}

// Wait blocks until the process exits or timeout elapses. On timeout the
// process is terminated and TimedOut is returned. A timeout <= 0 falls back to
// the command's own timeout; both zero waits without bound. The returned error
// is only set when the process could not be terminated.
func (p *Process) Wait(timeout time.Duration) (State, error) {
	if timeout <= 0 {
		timeout = p.spec.Timeout
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-p.exited:
	case <-p.leaked:
		return p.State(), p.leakErr()
	case <-expired:
		if p.finish(TimedOut, &runerrors.ErrRunTimeout{Name: p.spec.name(), Timeout: timeout}) {
			p.log.Warn("process timed out", "timeout", timeout)
		}
		if err := p.terminate(); err != nil {
			return p.State(), err
		}
	}
	p.waitDrain()
	return p.State(), nil
}

// Stop terminates the process: a cooperative signal first, a kill after the
// grace period. Calling Stop on a finished process is a no-op.
func (p *Process) Stop() error {
	if p.finish(Stopped, nil) {
		p.log.Info("stopping process", "pid", p.PID())
	}
	if err := p.terminate(); err != nil {
		return err
	}
	p.waitDrain()
	return nil
}

func (p *Process) terminate() error {
	p.termMu.Lock()
	defer p.termMu.Unlock()
	if p.termDone {
		return p.termErr
	}
	p.termDone = true

	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := signalTerm(p.cmd.Process); err != nil {
		p.log.Debug("termination signal failed", "err", err)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(p.grace):
	}

	p.log.Warn("process ignored termination, killing", "pid", p.cmd.Process.Pid, "grace", p.grace)
	forcedKillsCounter.Inc()
	if err := signalKill(p.cmd.Process); err != nil {
		p.log.Debug("kill signal failed", "err", err)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(p.killWait):
	}

	p.termErr = &runerrors.ErrProcessLeak{PID: p.cmd.Process.Pid, Err: errors.New("process survived kill")}
	p.log.Error("process leaked", "pid", p.cmd.Process.Pid)
	p.mu.Lock()
	p.leak = p.termErr
	p.mu.Unlock()
	close(p.leaked)
	return p.termErr
}

func (p *Process) leakErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leak
}

// busy reports why another process may not start yet: the operating system
// process has not exited, or it survived a kill.
func (p *Process) busy() error {
	if p == nil {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := p.leakErr(); err != nil {
		return err
	}
	return ErrBusy
}

func (p *Process) waitDrain() {
	select {
	case <-p.drained:
	case <-time.After(drainWait):
		p.log.Debug("output drain still open after exit")
	}
}

// Done is closed once the operating system process has exited.
func (p *Process) Done() <-chan struct{} { return p.exited }

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PID returns the process id, or 0 if the process never started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) Command() Command { return p.spec }

func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Result returns the outcome so far. Before a terminal state the zero
// FinishedAt marks it as provisional.
func (p *Process) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Result{
		State:      p.state,
		ExitCode:   p.exitCode,
		Err:        p.err,
		StartedAt:  p.startedAt,
		FinishedAt: p.finishedAt,
	}
}

// Output returns the captured output.
func (p *Process) Output() string { return p.out.String() }

// Tail returns up to n of the newest output lines.
func (p *Process) Tail(n int) []string { return p.out.Tail(n) }

// Lines is the number of retained output lines.
func (p *Process) Lines() int { return p.out.Len() }
