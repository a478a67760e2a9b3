package metrics

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultCSVFile is the tabular metrics file written by the simulator.
const DefaultCSVFile = "metrics.csv"

var csvKeys = map[string]Field{
	"sim_speed":                      Throughput,
	"simulation_time":                SimTime,
	"avg_latency_ns":                 LatencyAvg,
	"p50_latency_ns":                 LatencyP50,
	"p95_latency_ns":                 LatencyP95,
	"p99_latency_ns":                 LatencyP99,
	"stddev_latency_ns":              LatencyStdDev,
	"bandwidth_mbps":                 Bandwidth,
	"traffic_total_transactions":     TrafficTotal,
	"traffic_sent_transactions":      TrafficSent,
	"traffic_completed_transactions": TrafficCompleted,
	"traffic_completion_rate":        TrafficCompletionRate,
}

// CSVSource reads rows of metric,value,unit. Rows whose value is not numeric,
// such as the header, are skipped.
type CSVSource struct {
	File string
}

// NewCSVSource creates a CSVSource reading file relative to the run directory.
func NewCSVSource(file string) CSVSource { return CSVSource{File: file} }

func (s CSVSource) Name() string { return "metrics_csv" }

func (s CSVSource) Extract(in Input) (Partial, error) {
	f, err := os.Open(filepath.Join(in.Dir, s.File))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	out := Partial{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if len(row) < 3 {
			continue
		}
		field, ok := csvKeys[strings.TrimSpace(row[0])]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			continue
		}
		out[field] = v
	}
}
