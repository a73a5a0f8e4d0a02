package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry for scrape-based metrics collection.
// Metrics are registered with a Prometheus registry and exposed via HTTP.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// NewScrapeRegistry creates a new ScrapeRegistry.
func NewScrapeRegistry() (*ScrapeRegistry, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}

	return &ScrapeRegistry{prom: reg}, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *ScrapeRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// NewGauge creates and registers a new scrape-based Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := r.prom.Register(g); err != nil {
		return nil, fmt.Errorf("registering gauge %s: %w", opts.Name, err)
	}
	return g, nil
}

// NewCounter creates and registers a new scrape-based Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c := prometheus.NewCounter(opts)
	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("registering counter %s: %w", opts.Name, err)
	}
	return c, nil
}

// NewCounterVec creates and registers a new scrape-based CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := r.prom.Register(vec); err != nil {
		return nil, fmt.Errorf("registering counter vec %s: %w", opts.Name, err)
	}
	return &scrapeCounterVec{vec: vec}, nil
}

// scrapeCounterVec adapts prometheus.CounterVec to the CounterVec interface.
type scrapeCounterVec struct {
	vec *prometheus.CounterVec
}

func (v *scrapeCounterVec) With(labels prometheus.Labels) Counter {
	return v.vec.With(labels)
}
