// Package middleware provides Echo middleware for logging, CORS, metrics and security.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Server errors log at error level, client errors at warn, the rest at info.
// A request whose handler panics, including a streamed response aborted with
// http.ErrAbortHandler, is still logged at error level with aborted=true.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			returned := false

			defer func() {
				req := c.Request()
				res := c.Response()

				status := res.Status
				level := slog.LevelInfo
				switch {
				case !returned:
					level = slog.LevelError
					if !res.Committed {
						// Recover writes a 500 once the panic reaches it.
						status = http.StatusInternalServerError
					}
				case status >= 500:
					level = slog.LevelError
				case status >= 400:
					level = slog.LevelWarn
				}

				attrs := []slog.Attr{
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Int("status", status),
					slog.Int64("duration_ms", time.Since(start).Milliseconds()),
					slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
					slog.String("remote_ip", c.RealIP()),
					slog.Int64("bytes_out", res.Size),
				}
				if !returned {
					attrs = append(attrs, slog.Bool("aborted", true))
				}
				logger.LogAttrs(context.Background(), level, "request", attrs...)
			}()

			err := next(c)
			returned = true
			if err != nil {
				// Let the central error handler write the response first so the
				// logged status matches what the client saw.
				c.Error(err)
			}
			return nil
		}
	}
}
