// Package report renders the outputs of a finished sweep batch.
package report

import (
	"bytes"
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"simsweep/internal/docvalue"
	"simsweep/internal/metrics"
	"simsweep/internal/sweep"
)

const (
	CSVFile     = "sweep_results.csv"
	SummaryFile = "sweep_summary.txt"
	ScriptFile  = "reproduce_sweep.sh"
	JSONFile    = "sweep_report.json"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcMap = template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"num":   docvalue.FormatNumber,
	"add":   func(a, b int) int { return a + b },
	"val": func(v metrics.Value) string {
		if !v.OK {
			return "n/a"
		}
		return v.String()
	},
	"quote": shellQuote,
}

var templates = template.Must(template.New("report").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl"))

// csvColumns follow the test case and parameter columns, in record field order.
var csvColumns = []string{
	"SimSpeed_CPS", "SimTime_MS",
	"Latency_Avg_NS", "Latency_P50_NS", "Latency_P95_NS", "Latency_P99_NS", "Latency_StdDev_NS",
	"BW_MBPS",
	"Traffic_Total", "Traffic_Sent", "Traffic_Completed", "Traffic_Completion_Rate",
}

// Writer writes every batch output into the batch directory and prints the
// summary.
type Writer struct {
	log *slog.Logger
	out io.Writer
}

// NewWriter creates a Writer. out receives the summary; nil disables printing.
func NewWriter(log *slog.Logger, out io.Writer) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{log: log, out: out}
}

// WriteReport implements sweep.ReportWriter.
func (w *Writer) WriteReport(rep *sweep.Report) error {
	files := []struct {
		name   string
		mode   os.FileMode
		render func(io.Writer, *sweep.Report) error
	}{
		{CSVFile, 0o644, WriteCSV},
		{SummaryFile, 0o644, RenderSummary},
		{ScriptFile, 0o755, RenderScript},
		{JSONFile, 0o644, WriteJSON},
	}
	for _, f := range files {
		var buf bytes.Buffer
		if err := f.render(&buf, rep); err != nil {
			return fmt.Errorf("render %s: %w", f.name, err)
		}
		path := filepath.Join(rep.Dir, f.name)
		if err := os.WriteFile(path, buf.Bytes(), f.mode); err != nil {
			return err
		}
		// WriteFile leaves the mode of an existing file untouched
		if err := os.Chmod(path, f.mode); err != nil {
			return err
		}
		w.log.Debug("batch output written", "file", path)
	}
	if w.out != nil {
		if err := RenderSummary(w.out, rep); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes one row per run. Unresolved metrics are empty cells.
func WriteCSV(out io.Writer, rep *sweep.Report) error {
	cw := csv.NewWriter(out)
	header := append([]string{"TestCase", rep.Config.Parameter}, csvColumns...)
	header = append(header, "Status")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, run := range rep.Runs {
		row := []string{run.Name(), run.Variant.ValueString()}
		for _, f := range metrics.Fields() {
			row = append(row, run.Record.Get(f).String())
		}
		row = append(row, run.Status().String())
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func RenderSummary(out io.Writer, rep *sweep.Report) error {
	return templates.ExecuteTemplate(out, "sweep_summary.txt.tmpl", rep)
}

func RenderScript(out io.Writer, rep *sweep.Report) error {
	return templates.ExecuteTemplate(out, "reproduce_sweep.sh.tmpl", rep)
}

func WriteJSON(out io.Writer, rep *sweep.Report) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
