package sink

import (
	"context"
	"log/slog"
	"time"

	"simsweep/internal/broadcast"
)

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 5 * time.Second
)

// SnapshotBatcher queues live snapshots and hands them to a writer in
// batches, off the goroutine that produced them.
type SnapshotBatcher struct {
	w        SnapshotWriter
	log      *slog.Logger
	size     int
	interval time.Duration
	in       chan broadcast.Snapshot
}

// NewSnapshotBatcher creates a batcher in front of w. A batch is written when
// size snapshots are pending or interval elapsed; zero values select the
// defaults.
func NewSnapshotBatcher(w SnapshotWriter, log *slog.Logger, size int, interval time.Duration) *SnapshotBatcher {
	if log == nil {
		log = slog.Default()
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &SnapshotBatcher{
		w:        w,
		log:      log,
		size:     size,
		interval: interval,
		in:       make(chan broadcast.Snapshot, 4*size),
	}
}

// Add queues s without blocking. A full queue drops s and returns false.
func (b *SnapshotBatcher) Add(s broadcast.Snapshot) bool {
	select {
	case b.in <- s:
		return true
	default:
		b.log.Warn("snapshot queue full, dropping snapshot", "timestamp", s.Timestamp)
		return false
	}
}

// Run writes batches until ctx is cancelled, then writes whatever is queued.
func (b *SnapshotBatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var pending []broadcast.Snapshot
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := writeSnapshots(b.w, pending); err != nil {
			b.log.Warn("persisting snapshots failed", "count", len(pending), "err", err)
		}
		pending = nil
	}
	for {
		select {
		case s := <-b.in:
			pending = append(pending, s)
			if len(pending) >= b.size {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case s := <-b.in:
					pending = append(pending, s)
				default:
					flush()
					return nil
				}
			}
		}
	}
}

func writeSnapshots(w SnapshotWriter, snaps []broadcast.Snapshot) error {
	if bw, ok := w.(batchSnapshotWriter); ok {
		return bw.WriteSnapshots(snaps)
	}
	for _, s := range snaps {
		if err := w.WriteSnapshot(s); err != nil {
			return err
		}
	}
	return nil
}
