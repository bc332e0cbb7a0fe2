package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported at /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	ClassificationTotal    *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	TopicCorrections       *prometheus.CounterVec
	LinkReconciliations    *prometheus.CounterVec
	ExportedObjects        prometheus.Counter
	UploadedObjects        *prometheus.CounterVec
	GatewayCache           *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ClassificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitbrief_classification_runs_total",
				Help: "Classification runs by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ClassificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitbrief_classification_duration_seconds",
				Help:    "Classification run duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"provider"},
		),
		TopicCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitbrief_topic_corrections_total",
				Help: "Topic references corrected after classification",
			},
			[]string{"action"},
		),
		LinkReconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitbrief_link_reconciliations_total",
				Help: "Article-topic link mutations by mode",
			},
			[]string{"mode"},
		),
		ExportedObjects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitbrief_exported_objects_total",
				Help: "Documents written by the exporter",
			},
		),
		UploadedObjects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitbrief_synced_objects_total",
				Help: "Objects uploaded to or removed from the bucket",
			},
			[]string{"op"},
		),
		GatewayCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitbrief_gateway_cache_total",
				Help: "Gateway cache lookups by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.ClassificationTotal,
		m.ClassificationDuration,
		m.TopicCorrections,
		m.LinkReconciliations,
		m.ExportedObjects,
		m.UploadedObjects,
		m.GatewayCache,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveClassification(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ClassificationTotal.WithLabelValues(provider, outcome).Inc()
	m.ClassificationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) AddCorrection(action string) {
	if m == nil {
		return
	}
	m.TopicCorrections.WithLabelValues(action).Inc()
}

func (m *Metrics) AddReconciliation(mode string) {
	if m == nil {
		return
	}
	m.LinkReconciliations.WithLabelValues(mode).Inc()
}

func (m *Metrics) AddExported(n int) {
	if m == nil {
		return
	}
	m.ExportedObjects.Add(float64(n))
}

func (m *Metrics) AddSynced(op string, n int) {
	if m == nil {
		return
	}
	m.UploadedObjects.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.GatewayCache.WithLabelValues(result).Inc()
}
