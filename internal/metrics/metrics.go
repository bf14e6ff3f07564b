// Package metrics registers the counters and histograms exposed at
// GET /metrics, and keeps a small rolling window of query scan durations
// (every Query call, single-ledger and progressive alike) for a periodic
// p50/p90/p99 log line. Installing a *Metrics on
// the API server is optional, per spec.md §6 ("enabled when a handle is
// installed"); a nil *Metrics is safe to call every method on.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stellar/go/support/log"
)

// maxRecentScans bounds the rolling window used for percentile logging so
// memory stays flat regardless of query volume.
const maxRecentScans = 1000

// Metrics holds every registered collector plus the rolling scan-duration
// window. Construct with New; a nil *Metrics disables collection entirely.
type Metrics struct {
	log      *log.Entry
	registry *prometheus.Registry

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	scanDuration     prometheus.Histogram
	backfillDuration *prometheus.HistogramVec
	backfillOutcomes *prometheus.CounterVec
	parserRejections *prometheus.CounterVec

	mu          sync.Mutex
	recentScans []float64
}

// New constructs a Metrics with its own registry, so the server composing
// it never collides with the default global registry.
func New(logger *log.Entry) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      logger,
		registry: reg,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger_events_api",
			Name:      "cache_hits_total",
			Help:      "Ledger partition lookups that hit an already-cached partition.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger_events_api",
			Name:      "cache_misses_total",
			Help:      "Ledger partition lookups that required a backfill fetch.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger_events_api",
			Name:      "query_scan_duration_seconds",
			Help:      "Wall-clock time spent scanning partitions to satisfy one query.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		backfillDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger_events_api",
			Name:      "backfill_fetch_duration_seconds",
			Help:      "Time spent fetching and decoding one ledger batch from the object store.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"outcome"}),
		backfillOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger_events_api",
			Name:      "backfill_fetch_total",
			Help:      "Backfill fetches by outcome: ok, not_found, or error.",
		}, []string{"outcome"}),
		parserRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger_events_api",
			Name:      "query_parser_rejections_total",
			Help:      "Rejected q query strings by error kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.cacheHits, m.cacheMisses, m.scanDuration, m.backfillDuration, m.backfillOutcomes, m.parserRejections)
	return m
}

// Handler returns the promhttp handler for this registry, for mounting at
// GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheHit records a ledger lookup that found an already-cached partition.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a ledger lookup that triggered a backfill fetch.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// ObserveScan records how long one query's scan phase took, both in the
// Prometheus histogram and in the rolling window used for percentile
// logging.
func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	seconds := d.Seconds()
	m.scanDuration.Observe(seconds)

	m.mu.Lock()
	m.recentScans = append(m.recentScans, seconds)
	if len(m.recentScans) > maxRecentScans {
		m.recentScans = m.recentScans[len(m.recentScans)-maxRecentScans:]
	}
	m.mu.Unlock()
}

// ObserveBackfillFetch records one backfill fetch's duration and outcome
// ("ok", "not_found", or "error").
func (m *Metrics) ObserveBackfillFetch(d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.backfillDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.backfillOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveParserRejection records one rejected q query by error kind.
func (m *Metrics) ObserveParserRejection(kind string) {
	if m == nil {
		return
	}
	m.parserRejections.WithLabelValues(kind).Inc()
}

// LogPercentiles computes p50/p90/p99 of the recent scan-duration window and
// emits a single log line. Intended to be called periodically from a
// background ticker; it is a lightweight stand-in for a full Prometheus
// summary, since the rolling window this reads is bounded and cheap.
func (m *Metrics) LogPercentiles() {
	if m == nil {
		return
	}
	m.mu.Lock()
	samples := append([]float64(nil), m.recentScans...)
	m.mu.Unlock()

	if len(samples) == 0 {
		return
	}

	p50, err50 := stats.Percentile(samples, 50)
	p90, err90 := stats.Percentile(samples, 90)
	p99, err99 := stats.Percentile(samples, 99)
	if err50 != nil || err90 != nil || err99 != nil {
		return
	}

	m.log.WithField("samples", len(samples)).
		WithField("p50_ms", p50*1000).
		WithField("p90_ms", p90*1000).
		WithField("p99_ms", p99*1000).
		Info("query scan latency")
}
