package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ProviderStripe is stored as the payment provider
const ProviderStripe = "stripe"

// MetadataInvoiceID is the metadata key linking a Stripe object to our invoice
const MetadataInvoiceID = "invoice_id"

// PaymentRecorder persists received payments
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, p *models.Payment) (bool, error)
}

// ExecutionStopper stops the follow-up of a paid invoice
type ExecutionStopper interface {
	StopForInvoice(ctx context.Context, invoiceID int64, reason string) (int, error)
}

// StripeConfig holds Stripe configuration
type StripeConfig struct {
	WebhookSecret string
}

// Service turns Stripe payment webhooks into recorded payments
type Service struct {
	config     *StripeConfig
	payments   PaymentRecorder
	executions ExecutionStopper
	logger     logger.Logger
}

// WebhookResult describes what a webhook delivery changed
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	InvoiceID int64  `json:"invoice_id,omitempty"`
	Recorded  bool   `json:"recorded"`
	Stopped   int    `json:"stopped"`
	Ignored   bool   `json:"ignored"`
}

// NewService creates a new billing service
func NewService(cfg *StripeConfig, payments PaymentRecorder, executions ExecutionStopper, log logger.Logger) *Service {
	return &Service{
		config:     cfg,
		payments:   payments,
		executions: executions,
		logger:     log,
	}
}

// HandleWebhook processes Stripe webhook events
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("webhook signature verification failed: %v", err))
	}

	s.logger.Info("Stripe webhook received", "event_id", event.ID, "type", event.Type)
	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}

	var payment *models.Payment
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		payment, err = paymentFromIntent(event)
	case stripe.EventTypeInvoicePaid:
		payment, err = paymentFromInvoice(event)
	default:
		result.Ignored = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.logger.Warn("Stripe payment carries no invoice reference", "event_id", event.ID)
		result.Ignored = true
		return result, nil
	}

	result.InvoiceID = payment.InvoiceID
	result.Recorded, err = s.payments.RecordPayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	result.Stopped, err = s.executions.StopForInvoice(ctx, payment.InvoiceID, models.StopReasonPaymentReceived)
	if err != nil {
		return nil, fmt.Errorf("failed to stop follow-ups: %w", err)
	}

	s.logger.Info("Payment received",
		"invoice_id", payment.InvoiceID,
		"amount", payment.Amount,
		"currency", payment.Currency,
		"new", result.Recorded,
		"stopped", result.Stopped)
	return result, nil
}

func paymentFromIntent(event stripe.Event) (*models.Payment, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("failed to unmarshal payment intent: %v", err))
	}

	invoiceID, ok, err := invoiceRef(pi.Metadata)
	if err != nil || !ok {
		return nil, err
	}

	return &models.Payment{
		InvoiceID:         invoiceID,
		Amount:            fromMinorUnits(pi.AmountReceived, string(pi.Currency)),
		Currency:          strings.ToUpper(string(pi.Currency)),
		Provider:          ProviderStripe,
		ProviderReference: pi.ID,
		PaidAt:            time.Unix(event.Created, 0).UTC(),
	}, nil
}

func paymentFromInvoice(event stripe.Event) (*models.Payment, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("failed to unmarshal invoice: %v", err))
	}

	invoiceID, ok, err := invoiceRef(inv.Metadata)
	if err != nil || !ok {
		return nil, err
	}

	paidAt := event.Created
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		paidAt = inv.StatusTransitions.PaidAt
	}

	return &models.Payment{
		InvoiceID:         invoiceID,
		Amount:            fromMinorUnits(inv.AmountPaid, string(inv.Currency)),
		Currency:          strings.ToUpper(string(inv.Currency)),
		Provider:          ProviderStripe,
		ProviderReference: inv.ID,
		PaidAt:            time.Unix(paidAt, 0).UTC(),
	}, nil
}

func invoiceRef(metadata map[string]string) (int64, bool, error) {
	raw, ok := metadata[MetadataInvoiceID]
	if !ok || raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, domain.NewValidationError(fmt.Sprintf("invalid %s metadata %q", MetadataInvoiceID, raw))
	}
	return id, true, nil
}

// Stripe amounts are in the currency's smallest unit
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

var threeDecimal = map[string]bool{
	"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
}

func fromMinorUnits(amount int64, currency string) float64 {
	currency = strings.ToLower(currency)
	switch {
	case zeroDecimal[currency]:
		return float64(amount)
	case threeDecimal[currency]:
		return float64(amount) / 1000
	}
	return float64(amount) / 100
}
