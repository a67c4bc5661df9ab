package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"asset-proxy/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. For proxied requests the duration covers the
// whole streamed body, not just the time to first byte.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			start := time.Now()
			var err error
			returned := false

			defer func() {
				m.RequestsInFlight.Dec()

				// A returned error has not been written yet; the central error handler
				// will do that later, so take the code from the error. A panic that
				// never returned is either an aborted stream (status already sent) or
				// one Recover turns into a 500.
				statusCode := c.Response().Status
				switch {
				case !returned && !c.Response().Committed:
					statusCode = http.StatusInternalServerError
				case err != nil:
					statusCode = http.StatusInternalServerError
					var he *echo.HTTPError
					if errors.As(err, &he) {
						statusCode = he.Code
					}
				}

				status := strconv.Itoa(statusCode)
				method := metrics.NormalizeMethod(c.Request().Method)
				route := metrics.NormalizeRoute(c.Request().URL.Path)

				m.RequestsTotal.WithLabelValues(method, status, route).Inc()
				m.RequestDuration.WithLabelValues(method, status, route).Observe(time.Since(start).Seconds())
			}()

			err = next(c)
			returned = true
			return err
		}
	}
}
