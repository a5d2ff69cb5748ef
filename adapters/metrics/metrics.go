// Package metrics provides Prometheus metrics for compile runs in watch mode.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the compile metrics.
type Collector struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	RunsActive  prometheus.Gauge

	// Output metrics
	OutputsTotal *prometheus.CounterVec
	Documents    prometheus.Gauge
	Routines     prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// Run is the outcome of one compile run.
type Run struct {
	Duration  time.Duration
	Documents int
	Routines  int
	Written   int
	Skipped   int
	Err       error
}

// New creates a collector registered in its own registry.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg, namespace)
	c.gatherer = reg
	return c
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer, namespace string) *Collector {
	if namespace == "" {
		namespace = "rpcgen"
	}
	factory := promauto.With(reg)

	c := &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compile_runs_total",
				Help:      "Total number of compile runs",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Compile run duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		RunsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "compile_runs_active",
				Help:      "Number of compile runs in progress",
			},
		),
		OutputsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outputs_total",
				Help:      "Total number of generated files by state",
			},
			[]string{"state"},
		),
		Documents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "documents",
				Help:      "Documents compiled by the last successful run",
			},
		),
		Routines: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "factory_routines",
				Help:      "Factory routines emitted by the last successful run",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(r Run) {
	c.RunDuration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		c.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	c.RunsTotal.WithLabelValues("ok").Inc()
	c.OutputsTotal.WithLabelValues("written").Add(float64(r.Written))
	c.OutputsTotal.WithLabelValues("skipped").Add(float64(r.Skipped))
	c.Documents.Set(float64(r.Documents))
	c.Routines.Set(float64(r.Routines))
}

// ObserveReload records a config reload attempt.
func (c *Collector) ObserveReload(at time.Time, err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// Handler serves the metrics. It answers 404 when the registry cannot be
// gathered from.
func (c *Collector) Handler() http.Handler {
	if c.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
