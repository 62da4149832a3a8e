package middleware

import (
	"github.com/labstack/echo/v4"
)

// apiHeaders are set on every response. The API only returns JSON and
// spreadsheet downloads, so nothing may be framed, sniffed or cached.
var apiHeaders = map[string]string{
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the API response headers. HSTS is only sent when
// the service runs behind TLS in production.
func SecurityHeaders(production bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range apiHeaders {
				h.Set(k, v)
			}
			if production {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}
