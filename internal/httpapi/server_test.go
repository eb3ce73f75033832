package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/metrics"
	"github.com/xtxerr/binwatch/internal/storage/series"
	testutil "github.com/xtxerr/binwatch/internal/testing"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	srv      *Server
	engine   *engine.Engine
	hub      *broadcast.Hub
	commands *commandRecorder
}

type commandRecorder struct {
	mu   sync.Mutex
	cmds []engine.Command
	err  error
}

func (r *commandRecorder) SendCommand(_ context.Context, cmd engine.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := func() time.Time { return testNow }

	hub := broadcast.NewHub(16)
	events := event.NewStore(200, hub)
	store := series.New(nil, series.Options{Now: now})
	cmds := &commandRecorder{}
	eng := engine.New(events, store, engine.Options{
		BinHeightCm: 30,
		Commands:    cmds,
		Now:         now,
	})

	srv := New(Config{}, Deps{Engine: eng, Hub: hub, Metrics: metrics.New(metrics.Options{})})
	return &testServer{srv: srv, engine: eng, hub: hub, commands: cmds}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestIngestSensor(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sensors", `{"bin_id":"BIN-001","sensors":{"recycle":{"ultrasonic":5}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entry event.Entry `json:"entry"`
	}
	decode(t, rec, &resp)
	if resp.Entry.PercentFull == nil || *resp.Entry.PercentFull != 83 {
		t.Errorf("expected percent_full=83, got %v", resp.Entry.PercentFull)
	}
	if resp.Entry.Colour != "orange" {
		t.Errorf("expected colour=orange, got %s", resp.Entry.Colour)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestIngestRejectsNonJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/ingest", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestIngestEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/ingest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if _, ok := ts.engine.Last(); !ok {
		t.Error("expected the empty payload to be stored")
	}
}

func TestAck(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing id", `{}`, http.StatusBadRequest},
		{"unknown id", `{"id":"nope"}`, http.StatusOK},
		{"no body", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/ack", tt.body)
			if rec.Code != tt.code {
				t.Errorf("expected status %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/override", `{"bin_id":"BIN-007","label":"cup","recyclable":"yes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Entry   event.Entry    `json:"entry"`
		Command engine.Command `json:"command"`
	}
	decode(t, rec, &resp)
	if resp.Entry.Recyclable != "no" || resp.Entry.Override != 1 {
		t.Errorf("expected recyclable=no override=1, got %s %d", resp.Entry.Recyclable, resp.Entry.Override)
	}
	if resp.Command.BinID != "BIN-007" || resp.Command.ID != resp.Entry.ID {
		t.Errorf("unexpected command %+v", resp.Command)
	}
	if len(ts.commands.cmds) != 1 {
		t.Errorf("expected 1 command sent, got %d", len(ts.commands.cmds))
	}
}

func TestOverrideDeliveryFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.commands.err = fmt.Errorf("broker down")

	rec := ts.do(t, http.MethodPost, "/api/override", `{}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
	if len(ts.engine.History()) != 1 {
		t.Error("expected the override entry to be stored")
	}
}

func TestSeriesAndPredict(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 6; i++ {
		ts.engine.IngestSensor("device", map[string]any{
			"bin_id":    "BIN-001",
			"distance":  30 - float64(i)*3,
			"timestamp": testNow.Add(time.Duration(i-6) * time.Hour).Format(time.RFC3339),
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/bins/BIN-001/series?hours=PT48H", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var series struct {
		Hours  float64 `json:"hours"`
		Points []any   `json:"points"`
	}
	decode(t, rec, &series)
	if series.Hours != 48 {
		t.Errorf("expected hours=48, got %v", series.Hours)
	}
	if len(series.Points) != 6 {
		t.Errorf("expected 6 points, got %d", len(series.Points))
	}

	rec = ts.do(t, http.MethodGet, "/api/bins/BIN-001/predict?hours=12&strategy=linear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var pred engine.Prediction
	decode(t, rec, &pred)
	if len(pred.Points) != 12 {
		t.Errorf("expected 12 projected points, got %d", len(pred.Points))
	}
	if pred.SlopePerHour == nil || *pred.SlopePerHour <= 0 {
		t.Errorf("expected a positive slope, got %v", pred.SlopePerHour)
	}

	rec = ts.do(t, http.MethodGet, "/api/bins/BIN-001/predict?strategy=magic", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown strategy, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/pickups?horizon=P2D", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var pickups struct {
		Horizon float64 `json:"horizon_hours"`
		Pickups []any   `json:"pickups"`
	}
	decode(t, rec, &pickups)
	if pickups.Horizon != 48 || len(pickups.Pickups) != 1 {
		t.Errorf("expected one pickup within 48h, got %+v", pickups)
	}
}

func TestBadHours(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{
		"/api/bins/BIN-001/series?hours=soon",
		"/api/bins/BIN-001/series?hours=-3",
		"/api/bins/BIN-001/series?hours=NaN",
		"/api/bins/BIN-001/stats?hours=Inf",
		"/api/bins/BIN-001/predict?hours=1099511627776",
		"/api/bins/BIN-001/predict?hours=721",
		"/api/pickups?horizon=1e300",
	}
	for _, path := range paths {
		rec := ts.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, rec.Code)
		}
	}
}

func TestBinStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.IngestSensor("device", map[string]any{"bin_id": "BIN-001", "distance": 3})

	rec := ts.do(t, http.MethodGet, "/api/bins/BIN-001", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var status engine.BinStatus
	decode(t, rec, &status)
	if status.PercentFull == nil || *status.PercentFull != 90 || status.Colour != "red" {
		t.Errorf("expected 90%% red, got %+v", status)
	}

	rec = ts.do(t, http.MethodGet, "/api/bins/BIN-404", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown bin, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.IngestSensor("device", map[string]any{"bin_id": "BIN-001", "distance": 10})

	srv := New(Config{}, Deps{
		Engine: ts.engine,
		Hub:    ts.hub,
		Status: map[string]func() any{
			"disk": func() any { return map[string]int{"file_count": 4} },
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var out struct {
		Events struct {
			Count int `json:"count"`
		} `json:"events"`
		Series struct {
			Points int `json:"points"`
		} `json:"series"`
		Broadcast struct {
			Published int64 `json:"published"`
		} `json:"broadcast"`
		Disk struct {
			FileCount int `json:"file_count"`
		} `json:"disk"`
		Query *json.RawMessage `json:"query"`
	}
	decode(t, rec, &out)
	if out.Events.Count != 1 {
		t.Errorf("expected 1 event, got %d", out.Events.Count)
	}
	if out.Series.Points != 1 {
		t.Errorf("expected 1 point, got %d", out.Series.Points)
	}
	if out.Broadcast.Published != 1 {
		t.Errorf("expected 1 published, got %d", out.Broadcast.Published)
	}
	if out.Disk.FileCount != 4 {
		t.Errorf("expected extra disk section, got %+v", out.Disk)
	}
	if out.Query != nil {
		t.Error("expected no query section without archive")
	}
}

func TestDailyWithoutArchive(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/bins/BIN-001/daily", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.IngestSensor("device", map[string]any{"bin_id": "BIN-001", "distance": 10})

	rec := ts.do(t, http.MethodGet, "/api/export.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %s", ct)
	}
	lines := bytes.Split(bytes.TrimSpace(rec.Body.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Errorf("expected header and one row, got %d lines", len(lines))
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/last", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("expected an Access-Control-Allow-Origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/last", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `binwatch_http_requests_total{route="/api/last",status="200"} 1`) {
		t.Error("expected the /api/last request to be counted")
	}
}

func TestWebsocketPush(t *testing.T) {
	ts := newTestServer(t)
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		return ts.hub.Count() == 1
	}); err != nil {
		t.Fatal(err)
	}

	entry, _ := ts.engine.IngestSensor("device", map[string]any{"bin_id": "BIN-001", "distance": 10})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg event.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != event.MessageEvent || msg.Entry == nil || msg.Entry.ID != entry.ID {
		t.Errorf("unexpected message %+v", msg)
	}

	conn.Close()
	if err := testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		return ts.hub.Count() == 0
	}); err != nil {
		t.Errorf("expected subscriber to be removed: %v", err)
	}
}

func TestWebsocketOrigin(t *testing.T) {
	ts := newTestServer(t)
	srv := New(Config{AllowedOrigins: []string{"http://dashboard.local"}}, Deps{Engine: ts.engine, Hub: ts.hub})
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	tests := []struct {
		origin string
		wantOK bool
	}{
		{"", true},
		{"http://dashboard.local", true},
		{"HTTP://DASHBOARD.LOCAL", true},
		{httpSrv.URL, true},
		{"http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("expected upgrade, got %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("expected upgrade to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected status 403, got %v", resp)
			}
		})
	}
}
