// Package metrics exposes Prometheus instrumentation for reconciliation and
// publishing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PublishAttempts   *prometheus.CounterVec
	PublishFiles      prometheus.Counter
	TrackedNotes      prometheus.Gauge
	ReconcileDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PublishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "publish_attempts_total",
			Help:      "Publish transactions by outcome",
		}, []string{"status"}),
		PublishFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "publish_files_total",
			Help:      "Files committed to the remote repository",
		}),
		TrackedNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "herald",
			Name:      "tracked_notes",
			Help:      "Notes currently in the tracking index",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "herald",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of full-store reconciliation scans",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.PublishAttempts,
		m.PublishFiles,
		m.TrackedNotes,
		m.ReconcileDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveReconcile records the duration of one scan.
func (m *Metrics) ObserveReconcile(seconds float64) { m.ReconcileDuration.Observe(seconds) }

// SetTracked sets the tracked-notes gauge.
func (m *Metrics) SetTracked(n int) { m.TrackedNotes.Set(float64(n)) }

// ObservePublish counts one transaction and the files it committed.
func (m *Metrics) ObservePublish(status string, files int) {
	m.PublishAttempts.WithLabelValues(status).Inc()
	m.PublishFiles.Add(float64(files))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
