package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MetricsNamespace = "mirror"

// Metrics creates metrics on its own registry and serves them.
type Metrics interface {
	counterMethods
	gaugeMethods
	histogramMethods
	summaryMethods

	Handler() http.Handler
}

type metricsHandler struct {
	registry *prometheus.Registry
}

// NewMetrics returns a handler with go runtime and process collectors registered.
func NewMetrics() Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &metricsHandler{registry: registry}
}

func (m *metricsHandler) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
