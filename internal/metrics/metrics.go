// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Upstream fetch outcome label values.
const (
	OutcomeResponse = "response"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metric collectors for the server.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	ProxiedBytes      prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asset_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds, including streamed bodies.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asset_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asset_proxy_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers arrived, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"outcome"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_proxy_upstream_responses_total",
			Help: "Total upstream responses by status code.",
		}, []string{"status_code"}),

		ProxiedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_proxy_proxied_bytes_total",
			Help: "Body bytes relayed from upstream origins to clients.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.ProxiedBytes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownRoutes lists the fixed route label values; everything else is static.
var knownRoutes = []string{"/proxy", "/ping", "/status", "/metrics"}

// NormalizeRoute returns a bounded route label for Prometheus metrics.
// Static file paths are unbounded and collapse into "static".
func NormalizeRoute(path string) string {
	for _, route := range knownRoutes {
		if path == route || strings.HasPrefix(path, route+"/") {
			return route
		}
	}
	return "static"
}
