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

// ResponseHandler records customer replies to sent steps
type ResponseHandler struct {
	events  DeliveryEventRecorder
	logger  logger.Logger
	timeout time.Duration
}

// NewResponseHandler creates a new response handler
func NewResponseHandler(events DeliveryEventRecorder, log logger.Logger) *ResponseHandler {
	return &ResponseHandler{
		events:  events,
		logger:  log,
		timeout: 10 * time.Second,
	}
}

// RecordResponseRequest identifies the message a customer replied to
type RecordResponseRequest struct {
	ProviderMessageID string     `json:"provider_message_id" validate:"required,max=255"`
	RespondedAt       *time.Time `json:"responded_at"`
}

// RecordResponseResponse reports whether the reply changed the step record
type RecordResponseResponse struct {
	Recorded bool `json:"recorded"`
}

// RecordResponse godoc
// @Summary Record a customer reply to a follow-up message
// @Description Marks the step record as responded; only the first reply is kept
// @Tags Executions
// @Accept json
// @Produce json
// @Param request body RecordResponseRequest true "Replied message"
// @Success 200 {object} RecordResponseResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/responses [post]
func (h *ResponseHandler) RecordResponse(c echo.Context) error {
	var req RecordResponseRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	if err := c.Validate(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}

	ev := followup.DeliveryEvent{
		ProviderMessageID: req.ProviderMessageID,
		Type:              followup.EventReplied,
	}
	if req.RespondedAt != nil {
		ev.OccurredAt = *req.RespondedAt
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	changed, err := h.events.RecordDeliveryEvent(ctx, ev)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, RecordResponseResponse{Recorded: changed})
}
