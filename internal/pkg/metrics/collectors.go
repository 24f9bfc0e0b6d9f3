package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type (
	Counter   prometheus.Counter
	Gauge     prometheus.Gauge
	Histogram prometheus.Histogram
	Summary   prometheus.Summary

	// CounterVec is a Counter partitioned by labels.
	CounterVec interface {
		WithLabelValues(lvs ...string) prometheus.Counter
	}
	// GaugeVec is a Gauge partitioned by labels.
	GaugeVec interface {
		WithLabelValues(lvs ...string) prometheus.Gauge
	}
	// HistogramVec is a Histogram partitioned by labels.
	HistogramVec interface {
		WithLabelValues(lvs ...string) prometheus.Observer
	}
)

type counterMethods interface {
	NewCounter(subsystem, name, help string) Counter
	NewCounterVec(subsystem, name, help string, labels ...string) CounterVec
}

type gaugeMethods interface {
	NewGauge(subsystem, name, help string) Gauge
	NewGaugeVec(subsystem, name, help string, labels ...string) GaugeVec
}

type histogramMethods interface {
	NewHistogram(subsystem, name, help string, buckets []float64) Histogram
	NewHistogramVec(subsystem, name, help string, buckets []float64, labels ...string) HistogramVec
}

type summaryMethods interface {
	NewSummary(subsystem, name, help string, objectives map[float64]float64) Summary
}

func opts(subsystem, name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace: MetricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}
}

func (m *metricsHandler) NewCounter(subsystem, name, help string) Counter {
	metric := prometheus.NewCounter(prometheus.CounterOpts(opts(subsystem, name, help)))
	m.registry.MustRegister(metric)

	return metric
}

func (m *metricsHandler) NewCounterVec(subsystem, name, help string, labels ...string) CounterVec {
	metric := prometheus.NewCounterVec(prometheus.CounterOpts(opts(subsystem, name, help)), labels)
	m.registry.MustRegister(metric)

	return metric
}

func (m *metricsHandler) NewGauge(subsystem, name, help string) Gauge {
	metric := prometheus.NewGauge(prometheus.GaugeOpts(opts(subsystem, name, help)))
	m.registry.MustRegister(metric)

	return metric
}

func (m *metricsHandler) NewGaugeVec(subsystem, name, help string, labels ...string) GaugeVec {
	metric := prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(subsystem, name, help)), labels)
	m.registry.MustRegister(metric)

	return metric
}

// NewHistogram uses the prometheus default buckets when buckets is nil.
func (m *metricsHandler) NewHistogram(subsystem, name, help string, buckets []float64) Histogram {
	metric := prometheus.NewHistogram(histogramOpts(subsystem, name, help, buckets))
	m.registry.MustRegister(metric)

	return metric
}

func (m *metricsHandler) NewHistogramVec(subsystem, name, help string, buckets []float64, labels ...string) HistogramVec {
	metric := prometheus.NewHistogramVec(histogramOpts(subsystem, name, help, buckets), labels)
	m.registry.MustRegister(metric)

	return metric
}

func histogramOpts(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
	o := opts(subsystem, name, help)
	h := prometheus.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}
	if buckets != nil {
		h.Buckets = make([]float64, len(buckets))
		copy(h.Buckets, buckets)
	}

	return h
}

func (m *metricsHandler) NewSummary(subsystem, name, help string, objectives map[float64]float64) Summary {
	o := opts(subsystem, name, help)
	s := prometheus.SummaryOpts{
		Namespace:  o.Namespace,
		Subsystem:  o.Subsystem,
		Name:       o.Name,
		Help:       o.Help,
		Objectives: make(map[float64]float64, len(objectives)),
	}
	for k, v := range objectives {
		s.Objectives[k] = v
	}

	metric := prometheus.NewSummary(s)
	m.registry.MustRegister(metric)

	return metric
}
