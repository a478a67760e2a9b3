// Package metrics resolves one canonical performance record per simulator run
// from the artifacts that run left behind.
package metrics

// Field identifies one canonical field of a Record.
type Field int

const (
	Throughput Field = iota
	SimTime
	LatencyAvg
	LatencyP50
	LatencyP95
	LatencyP99
	LatencyStdDev
	Bandwidth
	TrafficTotal
	TrafficSent
	TrafficCompleted
	TrafficCompletionRate
	numFields
)

var fieldNames = [numFields]string{
	"throughput_cps",
	"sim_time_ms",
	"latency_avg_ns",
	"latency_p50_ns",
	"latency_p95_ns",
	"latency_p99_ns",
	"latency_stddev_ns",
	"bandwidth_mbps",
	"traffic_total",
	"traffic_sent",
	"traffic_completed",
	"traffic_completion_rate",
}

// Fields lists every canonical field in report column order.
func Fields() []Field {
	fs := make([]Field, numFields)
	for i := range fs {
		fs[i] = Field(i)
	}
	return fs
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Record is the canonical performance record of one run.
type Record struct {
	Throughput            Value `json:"throughput_cps"`
	SimTime               Value `json:"sim_time_ms"`
	LatencyAvg            Value `json:"latency_avg_ns"`
	LatencyP50            Value `json:"latency_p50_ns"`
	LatencyP95            Value `json:"latency_p95_ns"`
	LatencyP99            Value `json:"latency_p99_ns"`
	LatencyStdDev         Value `json:"latency_stddev_ns"`
	Bandwidth             Value `json:"bandwidth_mbps"`
	TrafficTotal          Value `json:"traffic_total"`
	TrafficSent           Value `json:"traffic_sent"`
	TrafficCompleted      Value `json:"traffic_completed"`
	TrafficCompletionRate Value `json:"traffic_completion_rate"`
}

func (r *Record) ptr(f Field) *Value {
	switch f {
	case Throughput:
		return &r.Throughput
	case SimTime:
		return &r.SimTime
	case LatencyAvg:
		return &r.LatencyAvg
	case LatencyP50:
		return &r.LatencyP50
	case LatencyP95:
		return &r.LatencyP95
	case LatencyP99:
		return &r.LatencyP99
	case LatencyStdDev:
		return &r.LatencyStdDev
	case Bandwidth:
		return &r.Bandwidth
	case TrafficTotal:
		return &r.TrafficTotal
	case TrafficSent:
		return &r.TrafficSent
	case TrafficCompleted:
		return &r.TrafficCompleted
	case TrafficCompletionRate:
		return &r.TrafficCompletionRate
	}
	return nil
}

// Get returns the value of field f.
func (r Record) Get(f Field) Value {
	if p := r.ptr(f); p != nil {
		return *p
	}
	return Value{}
}

// Set resolves field f to v.
func (r *Record) Set(f Field, v float64) {
	if p := r.ptr(f); p != nil {
		*p = Set(v)
	}
}

// Resolved counts the resolved fields.
func (r Record) Resolved() int {
	n := 0
	for _, f := range Fields() {
		if r.Get(f).OK {
			n++
		}
	}
	return n
}

// Complete reports whether every field is resolved.
func (r Record) Complete() bool { return r.Resolved() == int(numFields) }
