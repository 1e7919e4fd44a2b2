// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campusbooks"

type Metrics struct {
	reg *prometheus.Registry

	Scans           *prometheus.CounterVec
	CatalogLookups  *prometheus.CounterVec
	RequestsCreated prometheus.Counter
	Decisions       *prometheus.CounterVec
	DecisionRetries prometheus.Counter
	DecisionLatency *prometheus.HistogramVec
	EventFailures   prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Book scans recorded, by outcome (created, incremented, book_save_failed).",
		}, []string{"outcome"}),
		CatalogLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Catalog lookups made for first scans, by result (found, not_found, unavailable).",
		}, []string{"result"}),
		RequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Professor requests created.",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Admin decisions by kind (approve, partial, reject) and result code.",
		}, []string{"decision", "result"}),
		DecisionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_retries_total",
			Help:      "Decision units re-run after a transient store error.",
		}),
		DecisionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Wall time of admin decisions including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"decision"}),
		EventFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Domain events that could not be published.",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests and extra
// gauges registered by callers.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
