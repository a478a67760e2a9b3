package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultDocumentFile is the hierarchical performance document.
const DefaultDocumentFile = "performance.json"

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type performanceDocument struct {
	Performance *struct {
		SimSpeedCPS   *number `json:"sim_speed_cps"`
		BandwidthMbps *number `json:"bandwidth_mbps"`
	} `json:"performance"`
	Simulation *struct {
		DurationMS *number `json:"duration_ms"`
	} `json:"simulation"`
	Latency *struct {
		Avg    *number `json:"avg_ns"`
		P50    *number `json:"p50_ns"`
		P95    *number `json:"p95_ns"`
		P99    *number `json:"p99_ns"`
		StdDev *number `json:"stddev_ns"`
	} `json:"latency"`
	TrafficGenerator *struct {
		Total          *number `json:"total_transactions"`
		Sent           *number `json:"sent_transactions"`
		Completed      *number `json:"completed_transactions"`
		CompletionRate *number `json:"completion_rate"`
	} `json:"traffic_generator"`
}

// DocumentSource reads the performance, latency and traffic generator sections
// of a JSON performance document.
type DocumentSource struct {
	File string
}

// NewDocumentSource creates a DocumentSource reading file relative to the run directory.
func NewDocumentSource(file string) DocumentSource { return DocumentSource{File: file} }

func (s DocumentSource) Name() string { return "performance_json" }

func (s DocumentSource) Extract(in Input) (Partial, error) {
	data, err := os.ReadFile(filepath.Join(in.Dir, s.File))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc performanceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := Partial{}
	put := func(f Field, n *number) {
		if n != nil {
			out[f] = float64(*n)
		}
	}
	if p := doc.Performance; p != nil {
		if p.SimSpeedCPS != nil {
			// throughput is reported in whole cycles per second
			out[Throughput] = math.Trunc(float64(*p.SimSpeedCPS))
		}
		put(Bandwidth, p.BandwidthMbps)
	}
	if s := doc.Simulation; s != nil {
		put(SimTime, s.DurationMS)
	}
	if l := doc.Latency; l != nil {
		put(LatencyAvg, l.Avg)
		put(LatencyP50, l.P50)
		put(LatencyP95, l.P95)
		put(LatencyP99, l.P99)
		put(LatencyStdDev, l.StdDev)
	}
	if t := doc.TrafficGenerator; t != nil {
		put(TrafficTotal, t.Total)
		put(TrafficSent, t.Sent)
		put(TrafficCompleted, t.Completed)
		put(TrafficCompletionRate, t.CompletionRate)
	}
	return out, nil
}
