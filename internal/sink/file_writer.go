package sink

import (
	"encoding/json"
	"os"
	"sync"

	"simsweep/internal/broadcast"
	"simsweep/internal/sweep"
)

// FileWriter appends runs and snapshots to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	runFile  *os.File
	snapFile *os.File
	runEnc   *json.Encoder
	snapEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. Either path may be empty to skip that
// stream. Existing files are appended to.
func NewFileWriter(resultPath, snapshotPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	if resultPath != "" {
		f, err := openAppend(resultPath)
		if err != nil {
			return nil, err
		}
		fw.runFile, fw.runEnc = f, json.NewEncoder(f)
	}
	if snapshotPath != "" {
		f, err := openAppend(snapshotPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.snapFile, fw.snapEnc = f, json.NewEncoder(f)
	}
	return fw, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// WriteResult logs a single run, if enabled.
func (f *FileWriter) WriteResult(run sweep.TestCaseRun) error {
	if f.runEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runEnc.Encode(run)
}

// WriteSnapshot logs a single snapshot, if enabled.
func (f *FileWriter) WriteSnapshot(s broadcast.Snapshot) error {
	if f.snapEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapEnc.Encode(s)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.runFile, f.snapFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
