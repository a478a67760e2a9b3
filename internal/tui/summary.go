// Package tui renders live simulation snapshots in the terminal, either as a
// bubbletea program or as plain periodic text.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"simsweep/internal/broadcast"
)

const (
	// HistorySize is how many snapshots the terminal monitor keeps.
	HistorySize = 50
	barWidth    = 30
)

// Component is the activity count of one simulated component.
type Component struct {
	Name  string
	Count float64
}

// Summary is the aggregate view of one snapshot.
type Summary struct {
	SimSeconds   float64
	PacketRate   float64
	Bandwidth    float64
	TotalPackets float64

	HasCaches   bool
	CacheHits   float64
	CacheMisses float64

	HasDRAM       bool
	DRAMRequests  float64
	RowHits       float64
	BankConflicts float64

	Components []Component
}

// CacheAccesses is hits plus misses over all caches.
func (s Summary) CacheAccesses() float64 { return s.CacheHits + s.CacheMisses }

// HitRate is the cache hit rate in percent, 0 without accesses.
func (s Summary) HitRate() float64 { return percent(s.CacheHits, s.CacheAccesses()) }

// RowHitRate is the DRAM row hit rate in percent.
func (s Summary) RowHitRate() float64 { return percent(s.RowHits, s.DRAMRequests) }

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

// Summarize aggregates a snapshot.
func Summarize(snap broadcast.Snapshot) Summary {
	m := snap.Metrics
	s := Summary{
		SimSeconds:    snap.SimulationTimeNS / 1e9,
		PacketRate:    m.Performance.PacketRatePPS,
		Bandwidth:     m.Performance.BandwidthMbps,
		TotalPackets:  m.Performance.TotalPackets,
		HasCaches:     len(m.Caches) > 0,
		CacheHits:     sumKey(m.Caches, "hits"),
		CacheMisses:   sumKey(m.Caches, "misses"),
		HasDRAM:       len(m.DRAM) > 0,
		DRAMRequests:  sumKey(m.DRAM, "total_requests"),
		RowHits:       sumKey(m.DRAM, "row_hits"),
		BankConflicts: sumKey(m.DRAM, "bank_conflicts"),
	}
	for name, v := range m.Components {
		s.Components = append(s.Components, Component{Name: name, Count: number(v)})
	}
	sort.Slice(s.Components, func(i, j int) bool { return s.Components[i].Name < s.Components[j].Name })
	return s
}

// sumKey adds up key across every nested object of group.
func sumKey(group map[string]any, key string) float64 {
	var total float64
	for _, v := range group {
		if obj, ok := v.(map[string]any); ok {
			total += number(obj[key])
		}
	}
	return total
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// ThroughputBars draws one bar per snapshot, scaled to the largest packet
// rate. It returns nothing when there is nothing to compare.
func ThroughputBars(snaps []broadcast.Snapshot) []string {
	if len(snaps) < 2 {
		return nil
	}
	var max float64
	for _, s := range snaps {
		if r := s.Metrics.Performance.PacketRatePPS; r > max {
			max = r
		}
	}
	if max <= 0 {
		return nil
	}
	out := make([]string, len(snaps))
	for i, s := range snaps {
		pps := s.Metrics.Performance.PacketRatePPS
		bar := strings.Repeat("█", int(pps/max*barWidth))
		out[i] = fmt.Sprintf("%2d: %s %6.1f pps", i+1, padRight(bar, barWidth), pps)
	}
	return out
}

// padRight pads by rune count; fmt widths count bytes.
func padRight(s string, n int) string {
	if c := len([]rune(s)); c < n {
		return s + strings.Repeat(" ", n-c)
	}
	return s
}

// decodeUpdate extracts the snapshot of a metrics_update frame.
func decodeUpdate(frame []byte) (broadcast.Snapshot, bool) {
	var f struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &f); err != nil || f.Type != broadcast.EventMetricsUpdate {
		return broadcast.Snapshot{}, false
	}
	var s broadcast.Snapshot
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return broadcast.Snapshot{}, false
	}
	return s, true
}
