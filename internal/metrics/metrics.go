package metrics

import (
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus instruments behind one
// registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal    *prometheus.CounterVec
	ImportDuration  prometheus.Histogram
	LeadsImported   prometheus.Counter
	ReportsTotal    prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// New creates a registry with the service instruments plus the standard
// Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaddecisions",
			Name:      "imports_total",
			Help:      "Workbook imports by outcome.",
		}, []string{"outcome"}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leaddecisions",
			Name:      "import_duration_seconds",
			Help:      "End-to-end import duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		LeadsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leaddecisions",
			Name:      "leads_imported_total",
			Help:      "Leads persisted across all imports.",
		}),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leaddecisions",
			Name:      "reports_generated_total",
			Help:      "Marketing reports generated.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaddecisions",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		m.ImportsTotal,
		m.ImportDuration,
		m.LeadsImported,
		m.ReportsTotal,
		m.HTTPRequests,
	)
	return m
}

// Registry exposes the underlying registry so the OTel metric exporter
// can feed the same scrape endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts every request by method, path and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		m.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).Inc()
	})
}
