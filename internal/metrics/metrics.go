// Package metrics exposes Prometheus metrics for the local flow server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/nodeflow/internal/apperr"
)

// Run outcomes.
const (
	RunOK       = "ok"
	RunRedirect = "redirect"
	RunFailed   = "failed"
)

// Collector holds the server's metrics in a private registry.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	Runs         *prometheus.CounterVec
	FlowEvents   *prometheus.CounterVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_runs_total",
				Help:      "Flow runs submitted to the backend by outcome",
			},
			[]string{"outcome"},
		),
		FlowEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_events_total",
				Help:      "Flow change events by kind",
			},
			[]string{"kind"},
		),
	}
	c.registry.MustRegister(c.HTTPRequests, c.HTTPDuration, c.Runs, c.FlowEvents)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by chi route pattern, so
// ids in paths do not explode the label space.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRun counts one run by outcome.
func (c *Collector) ObserveRun(err error) {
	switch {
	case err == nil:
		c.Runs.WithLabelValues(RunOK).Inc()
	case apperr.IsRedirect(err):
		c.Runs.WithLabelValues(RunRedirect).Inc()
	default:
		c.Runs.WithLabelValues(RunFailed).Inc()
	}
}

// ObserveFlowEvent counts one flow change.
func (c *Collector) ObserveFlowEvent(kind string) {
	c.FlowEvents.WithLabelValues(kind).Inc()
}
