// Package metrics exposes Prometheus counters for country lookups.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smileynet/countrylookup/internal/lookup"
)

var _ lookup.Observer = (*Metrics)(nil)

// Metrics holds the lookup collectors and their registry.
type Metrics struct {
	registry       *prometheus.Registry
	Lookups        *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
}

// New registers the lookup collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "countries_lookups_total",
			Help: "Total number of country lookups by kind and outcome",
		}, []string{"kind", "outcome"}),
		LookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "countries_lookup_duration_seconds",
			Help:    "Duration of country lookups including the artificial delay",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5, 10},
		}, []string{"kind"}),
	}
}

// ObserveLookup records one completed lookup.
func (m *Metrics) ObserveLookup(kind, outcome string, elapsed time.Duration) {
	m.Lookups.WithLabelValues(kind, outcome).Inc()
	m.LookupDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
