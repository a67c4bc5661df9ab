package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

var corsAllowMethods = []string{http.MethodGet, http.MethodOptions}

// CORS returns a permissive CORS middleware: any origin, GET and OPTIONS only.
// Preflight requests are answered with 204 before routing reaches a handler.
//
// echo's CORS middleware only writes headers when the request carries an
// Origin. Browsers always send one, but the allow headers are set here on every
// response so that error replies and bare OPTIONS requests carry them too.
func CORS() echo.MiddlewareFunc {
	cors := echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: corsAllowMethods,
	})
	methods := strings.Join(corsAllowMethods, ",")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := cors(next)
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set(echo.HeaderAccessControlAllowOrigin, "*")
			if c.Request().Method == http.MethodOptions {
				header.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			return h(c)
		}
	}
}
