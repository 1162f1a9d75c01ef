// Package metrics exports sync pipeline counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dsync-go/internal/dsync"
	"dsync-go/internal/transport"
)

// Metrics holds the dsync collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	ChunkOperations *prometheus.CounterVec
	ChunkBytes      *prometheus.CounterVec
	FileOperations  *prometheus.CounterVec
	MirrorSyncs     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	_ dsync.Metrics             = (*Metrics)(nil)
	_ transport.RequestObserver = (*Metrics)(nil)
)

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChunkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsync_chunk_operations_total",
		}, []string{"direction", "result"}),
		ChunkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsync_chunk_bytes_total",
		}, []string{"direction"}),
		FileOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsync_file_operations_total",
		}, []string{"operation", "result"}),
		MirrorSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsync_index_mirror_syncs_total",
		}, []string{"mode"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsync_transport_request_duration_seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"backend", "operation", "result"}),
	}
	reg.MustRegister(m.ChunkOperations, m.ChunkBytes, m.FileOperations, m.MirrorSyncs, m.RequestDuration)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) chunk(direction string, ok bool, size int) {
	if m == nil {
		return
	}
	m.ChunkOperations.WithLabelValues(direction, result(ok)).Inc()
	if ok {
		m.ChunkBytes.WithLabelValues(direction).Add(float64(size))
	}
}

func (m *Metrics) ChunkUploaded(ok bool, size int)   { m.chunk("upload", ok, size) }
func (m *Metrics) ChunkDownloaded(ok bool, size int) { m.chunk("download", ok, size) }

func (m *Metrics) FileProcessed(operation string, ok bool) {
	if m == nil {
		return
	}
	m.FileOperations.WithLabelValues(operation, result(ok)).Inc()
}

func (m *Metrics) MirrorSynced(mode string) {
	if m == nil {
		return
	}
	m.MirrorSyncs.WithLabelValues(mode).Inc()
}

// ObserveRequest records one transport call.
func (m *Metrics) ObserveRequest(backend, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(backend, operation, result(err == nil)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
