package main

import (
	"io"
	"os"

	"simsweep/internal/sink"
)

const defaultGreptimeDatabase = "public"

// newWriters sets up the result writers for a sweep based on flags and env
// vars. Every run gets a status line; JSON records go to GreptimeDB when
// GREPTIMEDB_ENDPOINT is set, otherwise to stdout with --json. A log file
// adds a JSONL copy. The returned cleanup closes any opened files.
func newWriters(jsonOut bool, logFile string) (*sink.MultiWriter, func(), error) {
	cleanup := func() {}

	var status io.Writer = os.Stdout
	if jsonOut {
		status = os.Stderr
	}
	rws := []sink.ResultWriter{sink.NewStatusLineWriter(status)}

	base, err := baseWriter(jsonOut)
	if err != nil {
		return nil, nil, err
	}
	if base != nil {
		rws = append(rws, base)
	}
	if logFile == "" {
		return sink.NewMultiWriter(rws, nil), cleanup, nil
	}

	fw, err := sink.NewFileWriter(logFile, "")
	if err != nil {
		return nil, nil, err
	}
	rws = append(rws, fw)
	cleanup = func() { fw.Close() }
	return sink.NewMultiWriter(rws, nil), cleanup, nil
}

// baseWriter chooses the JSON record writer. It returns nil when records are
// not requested.
func baseWriter(jsonOut bool) (sink.ResultWriter, error) {
	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
		return sink.NewGreptimeDBWriter(endpoint, greptimeDatabase())
	}
	if jsonOut {
		return sink.NewJSONStdoutWriter(), nil
	}
	return nil, nil
}

func greptimeDatabase() string {
	if db := os.Getenv("GREPTIMEDB_DATABASE"); db != "" {
		return db
	}
	return defaultGreptimeDatabase
}

// newSnapshotWriters sets up where the monitor persists live snapshots:
// GreptimeDB when configured and a JSONL file with --log-file. The writer is
// empty when neither applies.
func newSnapshotWriters(logFile string) (*sink.MultiWriter, func(), error) {
	cleanup := func() {}
	var sws []sink.SnapshotWriter
	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
		gw, err := sink.NewGreptimeDBWriter(endpoint, greptimeDatabase())
		if err != nil {
			return nil, nil, err
		}
		sws = append(sws, gw)
	}
	if logFile != "" {
		fw, err := sink.NewFileWriter("", logFile+".snapshots")
		if err != nil {
			return nil, nil, err
		}
		sws = append(sws, fw)
		cleanup = func() { fw.Close() }
	}
	return sink.NewMultiWriter(nil, sws), cleanup, nil
}
