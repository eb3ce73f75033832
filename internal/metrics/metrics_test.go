package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngested(t *testing.T) {
	m := New(Options{})
	p := 83

	m.Ingested("mqtt", "sensor", "BIN-001", &p, nil)
	m.Ingested("mqtt", "sensor", "BIN-001", nil, errors.New("disk full"))

	if got := testutil.ToFloat64(m.ingested.WithLabelValues("mqtt", "sensor")); got != 2 {
		t.Errorf("expected ingested=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.ingestErrors.WithLabelValues("mqtt")); got != 1 {
		t.Errorf("expected ingest errors=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.fillPercent.WithLabelValues("BIN-001")); got != 83 {
		t.Errorf("expected fill_percent=83, got %v", got)
	}
}

func TestResultLabels(t *testing.T) {
	m := New(Options{})

	m.Override(nil)
	m.Override(errors.New("broker down"))
	m.Override(errors.New("broker down"))

	if got := testutil.ToFloat64(m.overrides.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected ok=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.overrides.WithLabelValues("error")); got != 2 {
		t.Errorf("expected error=2, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	p := 10

	// None of these may panic.
	m.Ingested("http", "sensor", "BIN-001", &p, nil)
	m.Acknowledged()
	m.Override(nil)
	m.Dropped()
	m.Subscribers(3)
	m.Published("kafka", nil)
	m.ArchiveRun(nil)
	m.HTTPRequest("/api/last", 200, time.Millisecond)
}

func TestHandler(t *testing.T) {
	m := New(Options{})
	m.Dropped()
	m.HTTPRequest("/api/last", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"binwatch_broadcast_dropped_total 1",
		`binwatch_http_requests_total{route="/api/last",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestFillGaugeBinLimit(t *testing.T) {
	m := New(Options{KnownBins: []string{"BIN-CFG"}, MaxBins: 2})
	p := 50

	for _, id := range []string{"BIN-A", "BIN-B", "BIN-C", "BIN-D", "BIN-A", "BIN-CFG"} {
		m.Ingested("http", "sensor", id, &p, nil)
	}

	if got := testutil.CollectAndCount(m.fillPercent); got != 3 {
		t.Errorf("expected 3 gauge series, got %d", got)
	}
	if got := testutil.ToFloat64(m.untracked); got != 2 {
		t.Errorf("expected fill_untracked_total=2, got %v", got)
	}
}
