package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/billing"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/email"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

// PaymentWebhookService handles verified payment provider events
type PaymentWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookResult, error)
}

// DeliveryEventRecorder applies delivery events to step records
type DeliveryEventRecorder interface {
	RecordDeliveryEvent(ctx context.Context, ev followup.DeliveryEvent) (bool, error)
}

// WebhookHandler receives provider callbacks
type WebhookHandler struct {
	payments PaymentWebhookService
	events   DeliveryEventRecorder
	verifier *email.Verifier
	logger   logger.Logger
}

// NewWebhookHandler creates a new webhook handler. A nil verifier accepts unsigned SendGrid events.
func NewWebhookHandler(payments PaymentWebhookService, events DeliveryEventRecorder, verifier *email.Verifier, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		events:   events,
		verifier: verifier,
		logger:   log,
	}
}

// DeliveryWebhookResponse summarizes a SendGrid batch
type DeliveryWebhookResponse struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	Unmatched int `json:"unmatched"`
}

// HandleStripe godoc
// @Summary Stripe webhook handler
// @Description Records payments from payment_intent.succeeded and invoice.paid and stops open follow-ups
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature for verification"
// @Success 200 {object} billing.WebhookResult
// @Failure 400 {object} models.ErrorResponse
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripe(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_signature",
			Message: "Stripe-Signature header is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	result, err := h.payments.HandleWebhook(ctx, body, signature)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleSendGrid godoc
// @Summary SendGrid event webhook handler
// @Description Applies delivered, open, click, bounce and dropped events to step records
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} DeliveryWebhookResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /webhooks/sendgrid [post]
func (h *WebhookHandler) HandleSendGrid(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	if h.verifier != nil {
		sig := c.Request().Header.Get(email.SignatureHeader)
		ts := c.Request().Header.Get(email.TimestampHeader)
		if err := h.verifier.Verify(body, sig, ts); err != nil {
			h.logger.Warn("rejected sendgrid webhook", "error", err)
			return errors.UnauthorizedError(c, err.Error())
		}
	}

	events, err := email.ParseEvents(body)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	resp := DeliveryWebhookResponse{Received: len(events)}
	for _, ev := range events {
		changed, err := h.events.RecordDeliveryEvent(ctx, ev)
		switch {
		case domain.IsNotFound(err):
			resp.Unmatched++
		case err != nil:
			// SendGrid retries the whole batch on a non-2xx response
			return errors.FromDomain(c, h.logger, err)
		case changed:
			resp.Applied++
		default:
			resp.Unchanged++
		}
	}

	return c.JSON(http.StatusOK, resp)
}
