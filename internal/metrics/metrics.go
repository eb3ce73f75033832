// Package metrics exposes binwatch counters in Prometheus format.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "binwatch"

// DefaultMaxBins bounds the bin_id label set of the fill gauge.
const DefaultMaxBins = 256

// Options configures Metrics.
type Options struct {
	// KnownBins always get a fill gauge series.
	KnownBins []string

	// MaxBins caps gauge series for bins outside KnownBins. Readings of
	// further bins are counted in fill_untracked_total instead.
	// Default: DefaultMaxBins
	MaxBins int
}

// Metrics holds the binwatch collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	ingested      *prometheus.CounterVec
	ingestErrors  *prometheus.CounterVec
	fillPercent   *prometheus.GaugeVec
	untracked     prometheus.Counter
	acknowledged  prometheus.Counter
	overrides     *prometheus.CounterVec
	dropped       prometheus.Counter
	subscribers   prometheus.Gauge
	published     *prometheus.CounterVec
	archiveRuns   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec

	binsMu  sync.Mutex
	known   map[string]bool
	tracked map[string]bool
	maxBins int
}

// New creates the collectors on a private registry.
func New(opts Options) *Metrics {
	if opts.MaxBins <= 0 {
		opts.MaxBins = DefaultMaxBins
	}
	known := make(map[string]bool, len(opts.KnownBins))
	for _, id := range opts.KnownBins {
		known[id] = true
	}

	m := &Metrics{
		known:    known,
		tracked:  make(map[string]bool),
		maxBins:  opts.MaxBins,
		registry: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_total",
			Help:      "Payloads recorded by source and kind.",
		}, []string{"source", "kind"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Payloads that could not be fully persisted, by source.",
		}, []string{"source"}),
		fillPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fill_percent",
			Help:      "Latest fill level per bin.",
		}, []string{"bin_id"}),
		untracked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_untracked_total",
			Help:      "Fill readings of bins beyond the gauge label limit.",
		}),
		acknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acknowledged_total",
			Help:      "Acknowledge requests handled.",
		}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Override commands by delivery result.",
		}, []string{"result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast messages dropped for slow subscribers.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_subscribers",
			Help:      "Connected broadcast subscribers.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Events published to external sinks by sink and result.",
		}, []string{"sink", "result"}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_runs_total",
			Help:      "Archive snapshots by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.ingested,
		m.ingestErrors,
		m.fillPercent,
		m.untracked,
		m.acknowledged,
		m.overrides,
		m.dropped,
		m.subscribers,
		m.published,
		m.archiveRuns,
		m.httpRequests,
		m.httpDurations,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Ingested counts a recorded payload. A non-nil percent updates the fill gauge.
func (m *Metrics) Ingested(source, kind, binID string, percent *int, err error) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source, kind).Inc()
	if err != nil {
		m.ingestErrors.WithLabelValues(source).Inc()
	}
	if percent != nil && binID != "" {
		if m.track(binID) {
			m.fillPercent.WithLabelValues(binID).Set(float64(*percent))
		} else {
			m.untracked.Inc()
		}
	}
}

// track reports whether binID may carry its own gauge series.
func (m *Metrics) track(binID string) bool {
	if m.known[binID] {
		return true
	}
	m.binsMu.Lock()
	defer m.binsMu.Unlock()
	if m.tracked[binID] {
		return true
	}
	if len(m.tracked) >= m.maxBins {
		return false
	}
	m.tracked[binID] = true
	return true
}

// Acknowledged counts an acknowledge request.
func (m *Metrics) Acknowledged() {
	if m == nil {
		return
	}
	m.acknowledged.Inc()
}

// Override counts an override command.
func (m *Metrics) Override(err error) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(result(err)).Inc()
}

// Dropped counts a message dropped for a slow subscriber.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Subscribers sets the connected subscriber count.
func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// Published counts an event handed to an external sink.
func (m *Metrics) Published(sink string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(sink, result(err)).Inc()
}

// ArchiveRun counts an archive snapshot.
func (m *Metrics) ArchiveRun(err error) {
	if m == nil {
		return
	}
	m.archiveRuns.WithLabelValues(result(err)).Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(route).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
