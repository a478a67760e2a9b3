package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"simsweep/internal/metrics"
	"simsweep/internal/sweep"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// StatusLineWriter prints one human readable line per finished run.
type StatusLineWriter struct {
	out   io.Writer
	color bool
}

// NewStatusLineWriter writes to out. Colour is enabled when out is a terminal.
func NewStatusLineWriter(out io.Writer) *StatusLineWriter {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &StatusLineWriter{out: out, color: color}
}

func (w *StatusLineWriter) paint(c, s string) string {
	if !w.color {
		return s
	}
	return c + s + colorReset
}

// WriteResult prints the run status and, when available, its key metrics.
func (w *StatusLineWriter) WriteResult(run sweep.TestCaseRun) error {
	var b strings.Builder
	status := run.Status()
	switch status {
	case sweep.Passed:
		b.WriteString(w.paint(colorGreen, "✓ "+status.String()))
	case sweep.TimedOut:
		b.WriteString(w.paint(colorYellow, "✗ "+status.String()))
	default:
		b.WriteString(w.paint(colorRed, "✗ "+status.String()))
	}
	fmt.Fprintf(&b, " %s %s=%s (%s)", run.Name(), run.Variant.Parameter, run.Variant.ValueString(),
		run.Duration().Round(time.Millisecond))
	if status == sweep.Failed && run.ExitCode != 0 {
		fmt.Fprintf(&b, " exit code %d", run.ExitCode)
	}
	if rec := run.Record; rec.Resolved() > 0 {
		for _, p := range []struct {
			f    metrics.Field
			unit string
		}{
			{metrics.Throughput, "cps"},
			{metrics.LatencyAvg, "ns avg"},
			{metrics.Bandwidth, "MB/s"},
		} {
			if v := rec.Get(p.f); v.OK {
				fmt.Fprintf(&b, "  %s %s", v.String(), p.unit)
			}
		}
	}
	_, err := fmt.Fprintln(w.out, b.String())
	return err
}
