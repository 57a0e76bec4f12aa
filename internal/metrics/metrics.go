// Package metrics exposes cachefsd's Prometheus collectors: store occupancy
// (spec.md §3 files_in_use/bytes_in_use), eviction counts, per-operation
// request counters, and the session registry's peak concurrent clients
// (spec.md §7 "Success criteria").
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects cachefsd's runtime counters. All methods are nil-safe:
// calls on a nil *Metrics are no-ops, so callers can pass nil when metrics
// are disabled (Config.Metrics.Enabled == false) at zero overhead.
type Metrics struct {
	FilesInUse     prometheus.Gauge
	BytesInUse     prometheus.Gauge
	PeakFiles      prometheus.Gauge
	PeakBytes      prometheus.Gauge
	EvictionsTotal prometheus.Counter

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ConnectedClients prometheus.Gauge
	PeakClients      prometheus.Gauge

	mu            sync.Mutex
	lastEvictions uint64
}

// New creates and registers cachefsd's collectors with reg. If reg is nil,
// collectors are created but not registered, matching the teacher's
// metrics-for-testing convention.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "files_in_use",
			Help:      "Current number of cached files.",
		}),
		BytesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "bytes_in_use",
			Help:      "Current number of bytes held by cached files.",
		}),
		PeakFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "peak_files",
			Help:      "Highest files_in_use observed since startup.",
		}),
		PeakBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "peak_bytes",
			Help:      "Highest bytes_in_use observed since startup.",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachefsd",
			Name:      "evictions_total",
			Help:      "Total number of files evicted to satisfy admission.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachefsd",
			Name:      "requests_total",
			Help:      "Total number of requests handled, by command and result code.",
		}, []string{"op", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cachefsd",
			Name:      "request_duration_microseconds",
			Help:      "Request handling latency in microseconds, by command.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		}, []string{"op"}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "connected_clients",
			Help:      "Current number of connected client sessions.",
		}),
		PeakClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachefsd",
			Name:      "peak_clients",
			Help:      "Highest number of simultaneously connected clients since startup.",
		}),
	}

	if reg != nil {
		m.FilesInUse = registerOrReuse(reg, m.FilesInUse).(prometheus.Gauge)
		m.BytesInUse = registerOrReuse(reg, m.BytesInUse).(prometheus.Gauge)
		m.PeakFiles = registerOrReuse(reg, m.PeakFiles).(prometheus.Gauge)
		m.PeakBytes = registerOrReuse(reg, m.PeakBytes).(prometheus.Gauge)
		m.EvictionsTotal = registerOrReuse(reg, m.EvictionsTotal).(prometheus.Counter)
		m.RequestsTotal = registerOrReuse(reg, m.RequestsTotal).(*prometheus.CounterVec)
		m.RequestDuration = registerOrReuse(reg, m.RequestDuration).(*prometheus.HistogramVec)
		m.ConnectedClients = registerOrReuse(reg, m.ConnectedClients).(prometheus.Gauge)
		m.PeakClients = registerOrReuse(reg, m.PeakClients).(prometheus.Gauge)
	}

	return m
}

// registerOrReuse registers c with reg, returning the already-registered
// collector instead of panicking when New is called more than once against
// the same registry (tests constructing several Metrics against
// prometheus.NewRegistry() per case do not hit this path).
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ObserveStoreStats copies a store.Stats-shaped snapshot into the gauges.
// Takes plain values rather than importing internal/store to avoid a
// metrics->store->metrics import cycle risk as the two packages grow.
func (m *Metrics) ObserveStoreStats(filesInUse, bytesInUse, peakFiles, peakBytes int, evictionsTotal uint64) {
	if m == nil {
		return
	}
	m.FilesInUse.Set(float64(filesInUse))
	m.BytesInUse.Set(float64(bytesInUse))
	m.PeakFiles.Set(float64(peakFiles))
	m.PeakBytes.Set(float64(peakBytes))

	m.mu.Lock()
	delta := evictionsTotal - m.lastEvictions
	m.lastEvictions = evictionsTotal
	m.mu.Unlock()
	if delta > 0 {
		m.EvictionsTotal.Add(float64(delta))
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(op string, code string, micros float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(op, code).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(micros)
}

// SetConnectedClients sets the live client gauge to count and the peak gauge
// to peak.
func (m *Metrics) SetConnectedClients(count, peak int) {
	if m == nil {
		return
	}
	m.ConnectedClients.Set(float64(count))
	m.PeakClients.Set(float64(peak))
}
