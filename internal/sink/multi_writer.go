package sink

import (
	"github.com/hashicorp/go-multierror"

	"simsweep/internal/broadcast"
	"simsweep/internal/sweep"
)

// MultiWriter fans runs and snapshots out to multiple writers. A failing
// writer does not prevent delivery to the others.
type MultiWriter struct {
	results   []ResultWriter
	snapshots []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(rws []ResultWriter, sws []SnapshotWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range rws {
		if w != nil {
			mw.results = append(mw.results, w)
		}
	}
	for _, w := range sws {
		if w != nil {
			mw.snapshots = append(mw.snapshots, w)
		}
	}
	return mw
}

// WriteResult sends a run to all result writers.
func (mw *MultiWriter) WriteResult(run sweep.TestCaseRun) error {
	var errs *multierror.Error
	for _, w := range mw.results {
		if err := w.WriteResult(run); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// WriteSnapshot sends a snapshot to all snapshot writers.
func (mw *MultiWriter) WriteSnapshot(s broadcast.Snapshot) error {
	var errs *multierror.Error
	for _, w := range mw.snapshots {
		if err := w.WriteSnapshot(s); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// WriteSnapshots sends multiple snapshots, using batch if supported.
func (mw *MultiWriter) WriteSnapshots(snaps []broadcast.Snapshot) error {
	var errs *multierror.Error
	for _, w := range mw.snapshots {
		if bw, ok := w.(batchSnapshotWriter); ok {
			if err := bw.WriteSnapshots(snaps); err != nil {
				errs = multierror.Append(errs, err)
			}
			continue
		}
		for _, s := range snaps {
			if err := w.WriteSnapshot(s); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

// Empty reports whether no writer is attached.
func (mw *MultiWriter) Empty() bool { return len(mw.results) == 0 && len(mw.snapshots) == 0 }
