package httpapi

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ewma is a lock-free exponentially-weighted moving average: each sample
// is combined as avg <- 0.9*avg + 0.1*sample, applied via compare-and-swap
// over the bits of an atomic.Uint64 so concurrent observers never block
// each other or a reader.
type ewma struct {
	bits atomic.Uint64
}

const ewmaWeight = 0.1

func (e *ewma) observe(sampleMs float64) {
	for {
		oldBits := e.bits.Load()
		old := math.Float64frombits(oldBits)
		var next float64
		if old == 0 {
			next = sampleMs
		} else {
			next = old*(1-ewmaWeight) + sampleMs*ewmaWeight
		}
		if e.bits.CompareAndSwap(oldBits, math.Float64bits(next)) {
			return
		}
	}
}

func (e *ewma) value() float64 {
	return math.Float64frombits(e.bits.Load())
}

// Metrics tracks request counts and moving-average latencies per endpoint
// group, both for the JSON /api/metrics snapshot and for Prometheus
// scraping at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	totalCount  atomic.Uint64
	searchCount atomic.Uint64
	chatCount   atomic.Uint64
	embedCount  atomic.Uint64
	errorCount  atomic.Uint64

	searchLatency ewma
	chatLatency   ewma
	embedLatency  ewma
}

// NewMetrics builds a Metrics collector on a fresh registry, so concurrent
// test instances never collide on Prometheus's global default registerer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled, by endpoint group.",
		}, []string{"endpoint"}),
		errorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "http_errors_total",
			Help:      "Total HTTP requests that ended in an error response, by endpoint group.",
		}, []string{"endpoint"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by endpoint group.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// observe records one completed request of the given endpoint group,
// updating both the Prometheus series and the lightweight moving-average
// counters backing the JSON snapshot.
func (m *Metrics) observe(endpoint string, dur time.Duration, isError bool) {
	m.requestsTotal.WithLabelValues(endpoint).Inc()
	m.latency.WithLabelValues(endpoint).Observe(dur.Seconds())
	m.totalCount.Add(1)
	if isError {
		m.errorsTotal.WithLabelValues(endpoint).Inc()
		m.errorCount.Add(1)
	}

	ms := float64(dur.Microseconds()) / 1000.0
	switch endpoint {
	case "search":
		m.searchCount.Add(1)
		m.searchLatency.observe(ms)
	case "chat":
		m.chatCount.Add(1)
		m.chatLatency.observe(ms)
	case "embed":
		m.embedCount.Add(1)
		m.embedLatency.observe(ms)
	}
}

// Snapshot is the JSON shape served at /api/metrics.
type Snapshot struct {
	TotalRequests   uint64  `json:"total_requests"`
	SearchRequests  uint64  `json:"search_requests"`
	ChatRequests    uint64  `json:"chat_requests"`
	EmbedRequests   uint64  `json:"embed_requests"`
	Errors          uint64  `json:"errors"`
	SearchLatencyMs float64 `json:"search_latency_ms_avg"`
	ChatLatencyMs   float64 `json:"chat_latency_ms_avg"`
	EmbedLatencyMs  float64 `json:"embed_latency_ms_avg"`
}

func (m *Metrics) snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   m.totalCount.Load(),
		SearchRequests:  m.searchCount.Load(),
		ChatRequests:    m.chatCount.Load(),
		EmbedRequests:   m.embedCount.Load(),
		Errors:          m.errorCount.Load(),
		SearchLatencyMs: m.searchLatency.value(),
		ChatLatencyMs:   m.chatLatency.value(),
		EmbedLatencyMs:  m.embedLatency.value(),
	}
}

// PrometheusHandler returns the http.Handler serving this registry's text
// exposition, wired to the /metrics route in server.go.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
