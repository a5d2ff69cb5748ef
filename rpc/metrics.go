package rpc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects transport metrics in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	callsTotal    *prometheus.CounterVec
	batchesTotal  *prometheus.CounterVec
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram
}

// NewMetrics creates the collectors. namespace defaults to "rpc".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rpc"
	}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of finished calls",
			},
			[]string{"method", "outcome"},
		),
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batches sent",
			},
			[]string{"status"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of calls per batch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Batch round trip duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}

	reg.MustRegister(m.callsTotal, m.batchesTotal, m.batchSize, m.batchDuration)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeCall(method, outcome string) {
	m.callsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeBatch(size int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(d.Seconds())
}
