package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimit returns a per-client-IP token bucket limiter. Liveness probes on
// /ping are never limited.
func RateLimit(rps float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(rps))
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/ping"
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.String(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
