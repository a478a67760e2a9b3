package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"simsweep/internal/broadcast"
	"simsweep/internal/metrics"
	"simsweep/internal/sweep"
)

const (
	ResultTable   = "sweep_results"
	SnapshotTable = "live_snapshots"

	defaultGreptimePort = 4001
	writeTimeout        = 10 * time.Second
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes sweep runs and live snapshots to GreptimeDB via the
// ingester client. Tables are created on first write.
type GreptimeDBWriter struct {
	client        greptimeClient
	resultTable   string
	snapshotTable string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{
		client:        client,
		resultTable:   ResultTable,
		snapshotTable: SnapshotTable,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port", endpoint)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) write(tbl *table.Table) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := w.client.Write(ctx, tbl)
	return err
}

func (w *GreptimeDBWriter) resultSchema() (*table.Table, error) {
	tbl, err := table.New(w.resultTable)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"batch", "test_case", "parameter"} {
		if err := tbl.AddTagColumn(tag, types.STRING); err != nil {
			return nil, err
		}
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"value", types.FLOAT64},
		{"status", types.STRING},
		{"exit_code", types.INT64},
		{"duration_ms", types.INT64},
		{"resolved_fields", types.INT64},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	for _, f := range metrics.Fields() {
		if err := tbl.AddFieldColumn(f.String(), types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

func addResultRow(tbl *table.Table, run sweep.TestCaseRun) error {
	ts := run.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	row := []any{
		run.Batch,
		run.Name(),
		run.Variant.Parameter,
		run.Variant.Value,
		run.Status().String(),
		int64(run.ExitCode),
		run.Duration().Milliseconds(),
		int64(run.Record.Resolved()),
	}
	// unresolved fields are written as 0; resolved_fields tells them apart
	for _, f := range metrics.Fields() {
		row = append(row, run.Record.Get(f).Float())
	}
	row = append(row, ts)
	return tbl.AddRow(row...)
}

// WriteResult inserts a single run.
func (w *GreptimeDBWriter) WriteResult(run sweep.TestCaseRun) error {
	return w.WriteResults([]sweep.TestCaseRun{run})
}

// WriteResults inserts multiple runs in one request.
func (w *GreptimeDBWriter) WriteResults(runs []sweep.TestCaseRun) error {
	if len(runs) == 0 {
		return nil
	}
	tbl, err := w.resultSchema()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := addResultRow(tbl, r); err != nil {
			return err
		}
	}
	return w.write(tbl)
}

func (w *GreptimeDBWriter) snapshotSchema() (*table.Table, error) {
	tbl, err := table.New(w.snapshotTable)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("source", types.STRING); err != nil {
		return nil, err
	}
	for _, name := range []string{"simulation_time_ns", "packet_rate_pps", "bandwidth_mbps", "total_packets"} {
		if err := tbl.AddFieldColumn(name, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("components", types.JSON); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// WriteSnapshot inserts a single snapshot.
func (w *GreptimeDBWriter) WriteSnapshot(s broadcast.Snapshot) error {
	return w.WriteSnapshots([]broadcast.Snapshot{s})
}

// WriteSnapshots inserts multiple snapshots in one request.
func (w *GreptimeDBWriter) WriteSnapshots(snaps []broadcast.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tbl, err := w.snapshotSchema()
	if err != nil {
		return err
	}
	for _, s := range snaps {
		components, err := json.Marshal(s.Metrics.Components)
		if err != nil {
			return err
		}
		perf := s.Metrics.Performance
		if err := tbl.AddRow(
			broadcast.DefaultMetricsFile,
			s.SimulationTimeNS,
			perf.PacketRatePPS,
			perf.BandwidthMbps,
			perf.TotalPackets,
			string(components),
			s.Time(),
		); err != nil {
			return err
		}
	}
	return w.write(tbl)
}
