// Package sink delivers finished sweep runs and live snapshots to files,
// stdout and GreptimeDB.
package sink

import (
	"simsweep/internal/broadcast"
	"simsweep/internal/sweep"
)

// ResultWriter receives every finished sweep run.
type ResultWriter interface {
	WriteResult(sweep.TestCaseRun) error
}

// SnapshotWriter receives live snapshots of a running simulation.
type SnapshotWriter interface {
	WriteSnapshot(broadcast.Snapshot) error
}

// Optional: snapshot writers may support batch mode.
type batchSnapshotWriter interface {
	WriteSnapshots([]broadcast.Snapshot) error
}

var (
	_ sweep.ResultWriter = (*MultiWriter)(nil)
	_ ResultWriter       = (*FileWriter)(nil)
	_ SnapshotWriter     = (*FileWriter)(nil)
	_ ResultWriter       = (*JSONStdoutWriter)(nil)
	_ SnapshotWriter     = (*JSONStdoutWriter)(nil)
	_ ResultWriter       = (*StatusLineWriter)(nil)
	_ ResultWriter       = (*GreptimeDBWriter)(nil)
	_ SnapshotWriter     = (*GreptimeDBWriter)(nil)

	_ batchSnapshotWriter = (*MultiWriter)(nil)
	_ batchSnapshotWriter = (*GreptimeDBWriter)(nil)
)
