// Package metrics exposes Prometheus metrics for the map server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider owns a private registry. All methods are safe on a nil Provider
// so components can be built without metrics in tests.
type Provider struct {
	reg *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	selections    *prometheus.CounterVec
	sessions      prometheus.Gauge
}

func New(version string) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "app_build_info",
		Help: "Build info for this binary (value is always 1).",
	}, []string{"version"})
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version).Set(1)

	p := &Provider{
		reg: reg,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bcat_query_total",
			Help: "Feature collection queries by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bcat_query_duration_seconds",
			Help:    "Feature collection query latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bcat_query_cache_total",
			Help: "Query cache lookups by backend and result.",
		}, []string{"backend", "result"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_selection_total",
			Help: "Feature selections and popup closes.",
		}, []string{"action"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_sessions",
			Help: "Live data layer panel sessions.",
		}),
	}
	reg.MustRegister(build, p.queries, p.queryDuration, p.cache, p.selections, p.sessions)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// ObserveQuery records one query outcome ("ok" or "error").
func (p *Provider) ObserveQuery(dataset string, err error, d time.Duration) {
	if p == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.queries.WithLabelValues(dataset, outcome).Inc()
	p.queryDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

// ObserveCache records a cache "hit", "miss", "bypass" or "error".
func (p *Provider) ObserveCache(backend, result string) {
	if p == nil {
		return
	}
	p.cache.WithLabelValues(backend, result).Inc()
}

// ObserveSelection records "select" or "close".
func (p *Provider) ObserveSelection(action string) {
	if p == nil {
		return
	}
	p.selections.WithLabelValues(action).Inc()
}

func (p *Provider) SetSessions(n int) {
	if p == nil {
		return
	}
	p.sessions.Set(float64(n))
}
