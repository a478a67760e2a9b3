package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultLogPattern matches the simulator's own log files in a run directory.
const DefaultLogPattern = "simulation_*.log"

type labelRule struct {
	label   string
	require string
	field   Field
}

// Labels printed by the simulator, matched anywhere in a line. The first
// whitespace-delimited token after the label is the value.
var labelRules = []labelRule{
	{label: "Sim Speed:", field: Throughput},
	{label: "Simulation time:", field: SimTime},
	{label: "Period avg latency:", field: LatencyAvg},
	{label: "Period median latency:", field: LatencyP50},
	{label: "Period 95th percentile:", field: LatencyP95},
	{label: "Period 99th percentile:", field: LatencyP99},
	{label: "Period std deviation:", field: LatencyStdDev},
	{label: "Average throughput:", require: "MB/sec", field: Bandwidth},
}

// parseLabeled scans text line by line. A later line overrides an earlier one
// for the same field.
func parseLabeled(content string) Partial {
	out := Partial{}
	for _, line := range strings.Split(content, "\n") {
		for _, rule := range labelRules {
			if rule.require != "" && !strings.Contains(line, rule.require) {
				continue
			}
			if v, ok := valueAfter(line, rule.label); ok {
				out[rule.field] = v
			}
		}
		// basic targets print "... time: 123 ms (0.123 seconds)"
		if !strings.Contains(line, "Simulation time:") && strings.Contains(line, "ms (") && strings.Contains(line, "seconds)") {
			if v, ok := valueAfter(line, "time:"); ok {
				out[SimTime] = v
			}
		}
	}
	return out
}

func valueAfter(line, label string) (float64, bool) {
	idx := strings.Index(line, label)
	if idx < 0 {
		return 0, false
	}
	fields := strings.Fields(line[idx+len(label):])
	if len(fields) == 0 {
		return 0, false
	}
	tok := strings.TrimRight(fields[0], ",;")
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// OutputSource pattern-matches labeled lines in the captured process output.
type OutputSource struct{}

func (OutputSource) Name() string { return "console_output" }

func (OutputSource) Extract(in Input) (Partial, error) {
	if strings.TrimSpace(in.Output) == "" {
		return nil, nil
	}
	return parseLabeled(in.Output), nil
}

// LogSource reads the most recently modified log file in the run directory.
// It is only consulted when no output was captured.
type LogSource struct {
	Pattern string
}

// NewLogSource creates a LogSource matching pattern inside the run directory.
func NewLogSource(pattern string) LogSource { return LogSource{Pattern: pattern} }

func (s LogSource) Name() string { return "log_file" }

func (s LogSource) Extract(in Input) (Partial, error) {
	if strings.TrimSpace(in.Output) != "" {
		return nil, nil
	}
	path, err := LatestFile(in.Dir, s.Pattern)
	if err != nil || path == "" {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseLabeled(string(data)), nil
}

// LatestFile returns the file in dir matching pattern with the newest
// modification time, or "" if none match.
func LatestFile(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	var (
		latest string
		newest int64
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		if info.IsDir() {
			continue
		}
		if mt := info.ModTime().UnixNano(); latest == "" || mt > newest {
			latest, newest = m, mt
		}
	}
	return latest, nil
}
