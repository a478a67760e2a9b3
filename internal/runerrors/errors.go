// Package runerrors contains the error taxonomy shared by the supervisor, the
// metric reader and the sweep orchestrator.
//
// Fatal errors (ErrConfig, ErrBuild, ErrProcessLeak) halt a batch immediately.
// The remaining errors describe a single variant and are recorded against it
// while the batch carries on.
package runerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig is returned when a sweep or target configuration is missing or
// malformed. It is always raised before any process is spawned.
type ErrConfig struct {
	// Path of the offending file, if any
	Path string
	// What is wrong with it
	Reason string
	Err    error
}

func (err *ErrConfig) Error() string {
	s := "invalid configuration"
	if err.Path != "" {
		s = fmt.Sprintf("invalid configuration %q", err.Path)
	}
	if err.Reason != "" {
		s += ": " + err.Reason
	}
	if err.Err != nil {
		s += ": " + err.Err.Error()
	}
	return s
}

func (err *ErrConfig) Unwrap() error { return err.Err }

// ErrBuild is returned when the simulator build step fails.
type ErrBuild struct {
	Target string
	// Tail of the build output
	Output string
	Err    error
}

func (err *ErrBuild) Error() string {
	s := fmt.Sprintf("build failed for target %q", err.Target)
	if err.Err != nil {
		s += ": " + err.Err.Error()
	}
	return s
}

func (err *ErrBuild) Unwrap() error { return err.Err }

// ErrRunTimeout marks a variant whose process did not exit in time.
type ErrRunTimeout struct {
	Name    string
	Timeout time.Duration
}

func (err *ErrRunTimeout) Error() string {
	return fmt.Sprintf("%s timed out after %s", err.Name, err.Timeout)
}

// ErrRunFailure marks a variant whose process exited with a nonzero code or
// could not be started at all.
type ErrRunFailure struct {
	Name     string
	ExitCode int
	Err      error
}

func (err *ErrRunFailure) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s failed (exit code %d): %s", err.Name, err.ExitCode, err.Err)
	}
	return fmt.Sprintf("%s failed (exit code %d)", err.Name, err.ExitCode)
}

func (err *ErrRunFailure) Unwrap() error { return err.Err }

// ErrExtraction describes one metric source that could not be read. It never
// aborts extraction; the reader moves on to the next source.
type ErrExtraction struct {
	Source string
	Path   string
	Err    error
}

func (err *ErrExtraction) Error() string {
	if err.Path != "" {
		return fmt.Sprintf("metric source %s (%s): %s", err.Source, err.Path, err.Err)
	}
	return fmt.Sprintf("metric source %s: %s", err.Source, err.Err)
}

func (err *ErrExtraction) Unwrap() error { return err.Err }

// ErrProcessLeak is returned when a process survives forced termination.
// Later variants would run alongside a stray simulator, so it is fatal.
type ErrProcessLeak struct {
	PID int
	Err error
}

func (err *ErrProcessLeak) Error() string {
	s := fmt.Sprintf("process %d survived forced termination", err.PID)
	if err.Err != nil {
		s += ": " + err.Err.Error()
	}
	return s
}

func (err *ErrProcessLeak) Unwrap() error { return err.Err }

// IsFatal reports whether err must halt the whole batch.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		cfgErr   *ErrConfig
		buildErr *ErrBuild
		leakErr  *ErrProcessLeak
	)
	return errors.As(err, &cfgErr) || errors.As(err, &buildErr) || errors.As(err, &leakErr)
}
