package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"simsweep/internal/metrics"
)

// Status is the lifecycle state of one test case run.
type Status int

const (
	Pending Status = iota
	Running
	Passed
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Passed:
		return "PASSED"
	case Failed:
		return "FAILED"
	case TimedOut:
		return "TIMEOUT"
	}
	return "UNKNOWN"
}

func (s Status) Terminal() bool { return s == Passed || s == Failed || s == TimedOut }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrInvalidTransition is returned for any status change other than
// Pending to Running and Running to a terminal status.
var ErrInvalidTransition = errors.New("invalid run status transition")

// TestCaseRun is the execution of one variant.
type TestCaseRun struct {
	Batch      string
	Variant    ParameterVariant
	Dir        string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Record     metrics.Record
	// Provenance maps resolved record fields to the source that supplied them.
	Provenance map[string]string
	Err        error

	status Status
}

// NewRun creates a pending run.
func NewRun(batch string, v ParameterVariant, dir string) *TestCaseRun {
	return &TestCaseRun{Batch: batch, Variant: v, Dir: dir, ExitCode: -1}
}

func (r *TestCaseRun) Name() string { return r.Variant.Name() }

func (r *TestCaseRun) Status() Status { return r.status }

// Start moves a pending run to Running.
func (r *TestCaseRun) Start(now time.Time) error {
	if r.status != Pending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, Running)
	}
	r.status = Running
	r.StartedAt = now
	return nil
}

// Finish records the terminal status of a running run. It succeeds once.
func (r *TestCaseRun) Finish(s Status, now time.Time) error {
	if r.status != Running || !s.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, s)
	}
	r.status = s
	r.FinishedAt = now
	return nil
}

// Duration is the wall time of the run.
func (r *TestCaseRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type runJSON struct {
	Batch      string            `json:"batch"`
	TestCase   string            `json:"test_case"`
	Parameter  string            `json:"parameter"`
	Value      float64           `json:"value"`
	Dir        string            `json:"dir"`
	Status     Status            `json:"status"`
	ExitCode   int               `json:"exit_code"`
	DurationMS int64             `json:"duration_ms"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Metrics    metrics.Record    `json:"metrics"`
	Provenance map[string]string `json:"provenance,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (r TestCaseRun) MarshalJSON() ([]byte, error) {
	out := runJSON{
		Batch:      r.Batch,
		TestCase:   r.Variant.Name(),
		Parameter:  r.Variant.Parameter,
		Value:      r.Variant.Value,
		Dir:        r.Dir,
		Status:     r.status,
		ExitCode:   r.ExitCode,
		DurationMS: r.Duration().Milliseconds(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Metrics:    r.Record,
		Provenance: r.Provenance,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
