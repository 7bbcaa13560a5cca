// Package metrics provides Prometheus metrics for the health ingest service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wisefido-health-ingest/internal/models"
)

// Chunk outcomes used as the status label.
const (
	ChunkOK      = "ok"
	ChunkRetried = "retried"
	ChunkFailed  = "failed"
)

// Manager owns the ingest metrics. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	recordsProcessed *prometheus.CounterVec
	recordsRejected  *prometheus.CounterVec
	recordsDeduped   *prometheus.CounterVec
	diagnostics      *prometheus.CounterVec
	chunksWritten    *prometheus.CounterVec
	chunkDuration    *prometheus.HistogramVec
	ingestDuration   *prometheus.HistogramVec
	jobsTotal        *prometheus.CounterVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms (seconds).
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a metrics manager registered on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "wisefido",
		subsystem:        "health_ingest",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_processed_total",
		Help:      "Records persisted by acknowledged chunks",
	}, []string{"family"})

	m.recordsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_rejected_total",
		Help:      "Records rejected by validation or storage",
	}, []string{"family", "error_kind"})

	m.recordsDeduped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_deduplicated_total",
		Help:      "Records collapsed into a winner sharing the same uniqueness key",
	}, []string{"family"})

	m.diagnostics = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "diagnostics_total",
		Help:      "Conversion and storage diagnostics by kind and severity",
	}, []string{"kind", "severity"})

	m.chunksWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chunks_total",
		Help:      "Upsert chunks by family and outcome",
	}, []string{"family", "status"})

	m.chunkDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "chunk_write_seconds",
		Help:      "Duration of a single chunk upsert",
		Buckets:   m.histogramBuckets,
	}, []string{"family"})

	m.ingestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_seconds",
		Help:      "End-to-end ingest duration",
		Buckets:   m.histogramBuckets,
	}, []string{"mode"})

	m.jobsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jobs_total",
		Help:      "Background jobs by final status",
	}, []string{"status"})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveChunk records one chunk statement.
func (m *Manager) ObserveChunk(family models.Family, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.chunksWritten.WithLabelValues(string(family), status).Inc()
	m.chunkDuration.WithLabelValues(string(family)).Observe(d.Seconds())
}

// ObserveReport records the counters carried by a finished ingest report.
func (m *Manager) ObserveReport(r *models.IngestReport, d time.Duration) {
	if m == nil || r == nil {
		return
	}
	for f, s := range r.PerFamily {
		if s.Accepted > 0 {
			m.recordsProcessed.WithLabelValues(string(f)).Add(float64(s.Accepted))
		}
		if s.DedupDropped > 0 {
			m.recordsDeduped.WithLabelValues(string(f)).Add(float64(s.DedupDropped))
		}
	}
	for _, rej := range r.Rejected {
		m.recordsRejected.WithLabelValues(string(rej.Family), string(rej.ErrorKind)).Inc()
	}
	for _, d := range r.Diagnostics {
		m.diagnostics.WithLabelValues(string(d.Kind), string(d.Severity)).Inc()
	}
	m.ingestDuration.WithLabelValues(r.Mode).Observe(d.Seconds())
}

// JobFinished counts a background job outcome.
func (m *Manager) JobFinished(status models.JobStatus) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(string(status)).Inc()
}
