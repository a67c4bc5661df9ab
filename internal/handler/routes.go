package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asset-proxy/internal/config"
	"asset-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Exact routes take precedence over the static catch-all.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	m *metrics.Metrics,
	proxy *ProxyHandler,
	health *HealthHandler,
	files *StaticHandler,
) {
	getAndHead(e, "/ping", health.Ping)
	getAndHead(e, "/status", health.Status)
	getAndHead(e, "/proxy", proxy.Handle)

	if cfg.Metrics.Enabled {
		getAndHead(e, cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	getAndHead(e, "/*", files.Serve)
}

// getAndHead registers h for GET and HEAD, so HEAD on an exact route never
// falls through to the static catch-all.
func getAndHead(e *echo.Echo, path string, h echo.HandlerFunc) {
	e.GET(path, h)
	e.HEAD(path, h)
}
