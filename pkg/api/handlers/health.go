package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports dependency health
type HealthHandler struct {
	db      Pinger
	cache   Pinger
	version string
}

// NewHealthHandler creates a new health handler. cache may be nil when Redis is not configured.
func NewHealthHandler(db, cache Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, version: version}
}

// Check godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	services := map[string]string{"database": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		services["database"] = "unavailable"
	}

	if h.cache != nil {
		services["redis"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			services["redis"] = "unavailable"
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	return c.JSON(status, map[string]interface{}{
		"status":   overall,
		"version":  h.version,
		"services": services,
		"time":     time.Now().UTC(),
	})
}
