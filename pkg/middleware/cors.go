package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// AllowedMethods are the methods the internal API accepts cross-origin
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
}

// AllowedHeaders are the request headers browsers may send
var AllowedHeaders = []string{
	"Origin",
	"Content-Type",
	"Accept",
	"Authorization",
}

// DefaultAllowedOrigins is used when no origins are configured
var DefaultAllowedOrigins = []string{
	"http://localhost:5678",
}

// CORSConfig returns the CORS configuration for the given origins.
// An empty list falls back to DefaultAllowedOrigins.
func CORSConfig(origins []string) middleware.CORSConfig {
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     AllowedMethods,
		AllowCredentials: true,
		AllowHeaders:     AllowedHeaders,
	}
}
