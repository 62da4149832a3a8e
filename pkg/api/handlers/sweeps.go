package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/labstack/echo/v4"
)

// SweepRunner runs one pass over due executions
type SweepRunner interface {
	RunOnce(ctx context.Context) (*followup.BatchResult, error)
}

// SweepHandler triggers a sweep on demand
type SweepHandler struct {
	sweeper SweepRunner
	logger  logger.Logger
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(sweeper SweepRunner, log logger.Logger) *SweepHandler {
	return &SweepHandler{sweeper: sweeper, logger: log}
}

// RunSweep godoc
// @Summary Process every due execution now
// @Tags Executions
// @Produce json
// @Success 200 {object} followup.BatchResult
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/sweeps [post]
func (h *SweepHandler) RunSweep(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
	defer cancel()

	result, err := h.sweeper.RunOnce(ctx)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}
