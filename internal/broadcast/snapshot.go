package broadcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"simsweep/internal/metrics"
)

// DefaultMetricsFile is the live snapshot file written by the simulator.
const DefaultMetricsFile = "metrics.json"

// Snapshot is one live performance snapshot of a running simulation.
type Snapshot struct {
	Timestamp        int64           `json:"timestamp"`
	SimulationTimeNS float64         `json:"simulation_time_ns"`
	Metrics          SnapshotMetrics `json:"metrics"`
}

type SnapshotMetrics struct {
	Performance Performance    `json:"performance"`
	Caches      map[string]any `json:"caches"`
	DRAM        map[string]any `json:"dram"`
	Components  map[string]any `json:"components"`
}

type Performance struct {
	PacketRatePPS float64 `json:"packet_rate_pps"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
	TotalPackets  float64 `json:"total_packets"`
}

// DefaultSnapshot is served before the simulator has written anything.
func DefaultSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Timestamp: now.UnixMilli(),
		Metrics: SnapshotMetrics{
			Caches:     map[string]any{},
			DRAM:       map[string]any{},
			Components: map[string]any{},
		},
	}
}

// Time returns the snapshot timestamp.
func (s Snapshot) Time() time.Time { return time.UnixMilli(s.Timestamp) }

// Record projects the snapshot onto the canonical record. Fields a snapshot
// does not carry stay unresolved.
func (s Snapshot) Record() metrics.Record {
	var r metrics.Record
	r.Set(metrics.Throughput, s.Metrics.Performance.PacketRatePPS)
	r.Set(metrics.Bandwidth, s.Metrics.Performance.BandwidthMbps)
	r.Set(metrics.TrafficTotal, s.Metrics.Performance.TotalPackets)
	r.Set(metrics.SimTime, s.SimulationTimeNS/1e6)
	return r
}

// DecodeSnapshot parses a snapshot document. Literal "\n" sequences written by
// the simulator are turned into newlines first.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	data = bytes.ReplaceAll(data, []byte(`\n`), []byte("\n"))
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Metrics.Caches == nil {
		s.Metrics.Caches = map[string]any{}
	}
	if s.Metrics.DRAM == nil {
		s.Metrics.DRAM = map[string]any{}
	}
	if s.Metrics.Components == nil {
		s.Metrics.Components = map[string]any{}
	}
	return s, nil
}

// Source provides snapshots and a freshness marker for them.
type Source interface {
	Name() string
	// Stat returns the modification time of the current snapshot and whether
	// one exists.
	Stat() (time.Time, bool, error)
	Load() (Snapshot, error)
}

// FileSource reads snapshots from a file on disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Stat() (time.Time, bool, error) {
	info, err := os.Stat(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

func (f FileSource) Load() (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, err
	}
	return DecodeSnapshot(data)
}
