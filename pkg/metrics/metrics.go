// Package metrics exposes run counters as Prometheus collectors. There is no
// HTTP endpoint; the registry is written once at the end of a run in the
// node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"waybackscraper/pkg/errors"
)

// Result labels for snapshot and image counters
const (
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"

	ResultDownloaded = "downloaded"
	ResultDuplicate  = "duplicate"
	ResultPresent    = "present"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SnapshotsTotal  *prometheus.CounterVec
	ImagesTotal     *prometheus.CounterVec
	BytesTotal      prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waybackscraper_requests_total",
			Help: "Total HTTP requests issued to the archive.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waybackscraper_request_duration_seconds",
			Help:    "HTTP request latency by phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	snapshots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waybackscraper_snapshots_total",
			Help: "Snapshots handled by result.",
		},
		[]string{"result"},
	)
	images := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waybackscraper_images_total",
			Help: "Image references handled by result.",
		},
		[]string{"result"},
	)
	bytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "waybackscraper_bytes_written_total",
			Help: "Bytes of image data written to disk.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waybackscraper_errors_total",
			Help: "Total number of errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, snapshots, images, bytesTotal, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		SnapshotsTotal:  snapshots,
		ImagesTotal:     images,
		BytesTotal:      bytesTotal,
		ErrorsTotal:     errorsTotal,
	}
}

// ObserveRequest records one archive request. It satisfies
// wayback.RequestObserver.
func (m *Metrics) ObserveRequest(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
	if err != nil {
		m.IncError(err)
	}
}

// IncSnapshot counts a snapshot under result.
func (m *Metrics) IncSnapshot(result string) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(result).Inc()
}

// IncImage counts an image reference under result.
func (m *Metrics) IncImage(result string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(result).Inc()
}

// AddBytes adds n written bytes.
func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.Add(float64(n))
}

// IncError increments the errors counter for the type of err.
func (m *Metrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(errors.TypeOf(err))).Inc()
}

// WriteTextfile writes the registry to path for the node-exporter textfile
// collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
