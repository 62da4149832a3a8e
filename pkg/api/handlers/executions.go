package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

// ExecutionService is the part of the executor the API drives
type ExecutionService interface {
	Start(ctx context.Context, req followup.StartRequest) (*followup.Result, error)
	Continue(ctx context.Context, executionID int64) (*followup.Result, error)
	Stop(ctx context.Context, executionID int64, reason string) (*followup.Result, error)
	Resume(ctx context.Context, executionID int64) (*followup.Result, error)
}

// ExecutionHandler handles execution lifecycle endpoints
type ExecutionHandler struct {
	executor ExecutionService
	logger   logger.Logger
	timeout  time.Duration
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(executor ExecutionService, log logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		executor: executor,
		logger:   log,
		timeout:  30 * time.Second,
	}
}

// StopRequest is the optional body of the stop endpoint
type StopRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// Start godoc
// @Summary Start a follow-up sequence for an invoice
// @Tags Executions
// @Accept json
// @Produce json
// @Param request body followup.StartRequest true "Sequence, invoice and trigger"
// @Success 201 {object} followup.Result
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/executions [post]
func (h *ExecutionHandler) Start(c echo.Context) error {
	var req followup.StartRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.executor.Start(ctx, req)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// Continue godoc
// @Summary Advance an execution if its next step is due
// @Tags Executions
// @Produce json
// @Param id path integer true "Execution ID"
// @Success 200 {object} followup.Result
// @Router /api/v1/executions/{id}/continue [post]
func (h *ExecutionHandler) Continue(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return invalidID(c, "Execution")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.executor.Continue(ctx, id)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Stop halts an execution
func (h *ExecutionHandler) Stop(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return invalidID(c, "Execution")
	}

	// the body is optional; an empty one binds to the zero value
	var req StopRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	if err := c.Validate(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.executor.Stop(ctx, id, req.Reason)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Resume returns an errored execution to the schedule
func (h *ExecutionHandler) Resume(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return invalidID(c, "Execution")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.executor.Resume(ctx, id)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func invalidID(c echo.Context, resource string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_id",
		Message: resource + " ID must be a positive integer",
	})
}
