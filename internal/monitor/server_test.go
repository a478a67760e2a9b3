package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simsweep/internal/broadcast"
	"simsweep/internal/controller"
	"simsweep/internal/docvalue"
	"simsweep/internal/logging"
	"simsweep/internal/runerrors"
	"simsweep/internal/supervisor"
)

const snapshotJSON = `{"timestamp": %d, "simulation_time_ns": 5000000,
 "metrics": {"performance": {"packet_rate_pps": 10, "bandwidth_mbps": 2.5, "total_packets": 40},
 "caches": {}, "dram": {}, "components": {"cpu": 3}}}`

func writeSnapshot(t *testing.T, path string, ts int64, mod time.Time) {
	t.Helper()
	body := fmt.Sprintf(snapshotJSON, ts)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

type fakeController struct {
	startErr error
	started  []controller.StartRequest
	swept    []byte
	saved    map[string][]byte
}

func (f *fakeController) Start(_ context.Context, req controller.StartRequest) (controller.Result, error) {
	f.started = append(f.started, req)
	if f.startErr != nil {
		return controller.Result{Message: "Simulation already running"}, f.startErr
	}
	return controller.Result{Success: true, Message: "Simulation started with PID 42", PID: 42}, nil
}

func (f *fakeController) Stop() (controller.Result, error) {
	return controller.Result{Message: "No simulation running"}, controller.ErrNotRunning
}

func (f *fakeController) Status() controller.Status {
	return controller.Status{Status: "running", PID: 42, LogLines: 2, RecentLog: []string{"a", "b"}}
}

func (f *fakeController) Log(n int) controller.LogView {
	return controller.LogView{TotalLines: n, LogLines: []string{}}
}

func (f *fakeController) Build(_ context.Context, target string) (controller.Result, error) {
	return controller.Result{Message: "build failed"}, &runerrors.ErrBuild{Target: target}
}

func (f *fakeController) Sweep(_ context.Context, data []byte) (controller.Result, error) {
	f.swept = data
	return controller.Result{Success: true, PID: 7}, nil
}

func (f *fakeController) RecentResults() ([]controller.BatchSummary, error) {
	return []controller.BatchSummary{{Name: "20250101_000000_q", Type: "sweep", TestCases: 3}}, nil
}

func (f *fakeController) Configs() (controller.ConfigList, error) {
	return controller.ConfigList{Templates: []string{"base_host"}, Types: []string{"sim"}, Sweeps: []string{}}, nil
}

func (f *fakeController) Config(name string) (*docvalue.Document, error) {
	if name != "base_host" {
		return nil, controller.ErrConfigNotFound
	}
	return docvalue.Parse([]byte(`{"b": 1, "a": {"queue_depth": 4}}`))
}

func (f *fakeController) SaveConfig(name string, data []byte) (string, error) {
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[name] = data
	return "/tmp/" + name + ".json", nil
}

type fixture struct {
	b    *broadcast.Broadcaster
	ctl  *fakeController
	srv  *httptest.Server
	file string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	file := filepath.Join(t.TempDir(), broadcast.DefaultMetricsFile)
	log := logging.Discard()
	b := broadcast.New(broadcast.FileSource{Path: file}, log, broadcast.Options{})
	ctl := &fakeController{}
	srv := httptest.NewServer(NewServer(b, ctl, log).Handler())
	t.Cleanup(srv.Close)
	return &fixture{b: b, ctl: ctl, srv: srv, file: file}
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (f *fixture) post(t *testing.T, path, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestPullAPI(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/metrics")
	require.Equal(t, http.StatusOK, code)
	var snap broadcast.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Zero(t, snap.SimulationTimeNS)

	code, body = f.get(t, "/api/history")
	require.Equal(t, http.StatusOK, code)
	var hist []broadcast.Snapshot
	require.NoError(t, json.Unmarshal(body, &hist))
	assert.Len(t, hist, 1, "empty history serves the default snapshot")

	writeSnapshot(t, f.file, 1000, time.Now().Add(-time.Minute))
	require.NoError(t, f.b.Poll())
	writeSnapshot(t, f.file, 2000, time.Now())
	require.NoError(t, f.b.Poll())

	_, body = f.get(t, "/api/metrics")
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, int64(2000), snap.Timestamp)
	assert.Equal(t, 2.5, snap.Metrics.Performance.BandwidthMbps)

	_, body = f.get(t, "/api/history?limit=1")
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, int64(2000), hist[0].Timestamp)

	code, body = f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, code)
	var st broadcast.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.FileExists)
	assert.Equal(t, 2, st.HistoryCount)
	assert.Equal(t, f.file, st.MetricsFile)
}

func readFrame(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&frame))
	return frame.Type, frame.Data
}

func TestWebsocket(t *testing.T) {
	f := newFixture(t)
	writeSnapshot(t, f.file, 1000, time.Now().Add(-time.Minute))
	require.NoError(t, f.b.Poll())

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	typ, data := readFrame(t, ws)
	require.Equal(t, broadcast.EventMetricsUpdate, typ)
	var snap broadcast.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, int64(1000), snap.Timestamp)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request_history", "limit": 10}))
	typ, data = readFrame(t, ws)
	require.Equal(t, broadcast.EventHistoryData, typ)
	var hist []broadcast.Snapshot
	require.NoError(t, json.Unmarshal(data, &hist))
	assert.Len(t, hist, 1)

	writeSnapshot(t, f.file, 3000, time.Now())
	require.NoError(t, f.b.Poll())
	typ, data = readFrame(t, ws)
	require.Equal(t, broadcast.EventMetricsUpdate, typ)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, int64(3000), snap.Timestamp)

	require.NoError(t, f.b.Publish(broadcast.EventSimulationStarted, map[string]int{"pid": 42}))
	typ, _ = readFrame(t, ws)
	assert.Equal(t, broadcast.EventSimulationStarted, typ)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start_simulation", "sim_type": "sim"}))
	typ, data = readFrame(t, ws)
	require.Equal(t, "simulation_result", typ)
	var res controller.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "sim", f.ctl.started[0].Type)
}

func TestWebsocketClosedWhenBroadcasterStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.b.Run(ctx)
		close(done)
	}()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	typ, _ := readFrame(t, ws)
	require.Equal(t, broadcast.EventMetricsUpdate, typ)

	cancel()
	<-done
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestSimulationControlRoutes(t *testing.T) {
	f := newFixture(t)

	code, body := f.post(t, "/api/simulation/start", `{"type": "cache_test", "config_dir": "config/x"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"pid":42`)
	assert.Equal(t, controller.StartRequest{Type: "cache_test", ConfigDir: "config/x"}, f.ctl.started[0])

	code, _ = f.post(t, "/api/simulation/start", "")
	assert.Equal(t, http.StatusOK, code, "empty body selects defaults")

	f.ctl.startErr = supervisor.ErrBusy
	code, body = f.post(t, "/api/simulation/start", "{}")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(body), "already running")

	code, _ = f.post(t, "/api/simulation/start", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.post(t, "/api/simulation/stop", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.get(t, "/api/simulation/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"recent_log":["a","b"]`)

	_, body = f.get(t, "/api/simulation/log?lines=25")
	assert.Contains(t, string(body), `"total_lines":25`)

	code, _ = f.post(t, "/api/simulation/build", `{"target": "sim"}`)
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = f.post(t, "/api/simulation/sweep", `{"parameter": "queue_depth"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"parameter": "queue_depth"}`, string(f.ctl.swept))

	_, body = f.get(t, "/api/simulation/results")
	assert.Contains(t, string(body), `"test_cases":3`)

	_, body = f.get(t, "/api/simulation/configs")
	assert.Contains(t, string(body), `"base_host"`)

	code, body = f.get(t, "/api/simulation/config/base_host")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"b": 1, "a": {"queue_depth": 4}}`, string(body))
	assert.Less(t, strings.Index(string(body), `"b"`), strings.Index(string(body), `"a"`), "key order preserved")

	code, _ = f.get(t, "/api/simulation/config/missing")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.post(t, "/api/simulation/config/mine", `{"x": 1}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `{"x": 1}`, string(f.ctl.saved["mine"]))
}

func TestPrometheusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/api/status")
	code, body := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "simsweep_monitor_requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(nil))
	assert.Equal(t, http.StatusBadRequest, statusFor(&runerrors.ErrConfig{Reason: "x"}))
	assert.Equal(t, http.StatusConflict, statusFor(supervisor.ErrBusy))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
