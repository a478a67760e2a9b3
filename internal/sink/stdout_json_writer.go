package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"simsweep/internal/broadcast"
	"simsweep/internal/sweep"
)

// JSONStdoutWriter prints runs and snapshots as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteResult outputs a run in JSON format.
func (w *JSONStdoutWriter) WriteResult(run sweep.TestCaseRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteSnapshot outputs a snapshot in JSON format.
func (w *JSONStdoutWriter) WriteSnapshot(s broadcast.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
