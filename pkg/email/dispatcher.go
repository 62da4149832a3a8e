package email

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendEndpoint = "/v3/mail/send"
	category     = "invoice-followup"
)

// Config holds the SendGrid settings
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides https://api.sendgrid.com
	Host string
}

// Dispatcher delivers follow-up steps through SendGrid.
// Without an API key it only logs messages (development mode).
type Dispatcher struct {
	cfg         Config
	logger      logger.Logger
	useSendGrid bool
}

var _ followup.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a new email dispatcher
func NewDispatcher(cfg Config, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:         cfg,
		logger:      log,
		useSendGrid: cfg.APIKey != "",
	}
	if d.useSendGrid {
		log.Info("email dispatcher initialized with SendGrid", "from", cfg.FromEmail)
	} else {
		log.Warn("email dispatcher in console-only mode (set SENDGRID_API_KEY for production)")
	}
	return d
}

// Send delivers one message and returns the provider message id
func (d *Dispatcher) Send(ctx context.Context, msg followup.Message) (*followup.SendResult, error) {
	if msg.To == "" {
		return nil, domain.NewDispatchError(fmt.Errorf("recipient address is empty"), false)
	}

	if !d.useSendGrid {
		return d.logToConsole(msg), nil
	}

	req := sendgrid.GetRequest(d.cfg.APIKey, sendEndpoint, d.cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(d.buildMail(msg))

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		d.logger.Error("sendgrid request failed", "execution_id", msg.ExecutionID, "step", msg.StepNumber, "error", err)
		return nil, domain.NewDispatchError(fmt.Errorf("failed to send email: %w", err), true)
	}

	if resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		d.logger.Error("sendgrid returned error status",
			"execution_id", msg.ExecutionID,
			"step", msg.StepNumber,
			"status", resp.StatusCode,
			"body", resp.Body,
		)
		return nil, domain.NewDispatchError(fmt.Errorf("sendgrid returned error status: %d", resp.StatusCode), retryable)
	}

	id := http.Header(resp.Headers).Get("X-Message-Id")
	if id == "" {
		return nil, domain.NewDispatchError(fmt.Errorf("sendgrid response carried no message id"), false)
	}

	d.logger.Info("email sent", "execution_id", msg.ExecutionID, "step", msg.StepNumber, "provider_message_id", id)
	return &followup.SendResult{ProviderMessageID: id}, nil
}

func (d *Dispatcher) buildMail(msg followup.Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(d.cfg.FromName, d.cfg.FromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	p.SetCustomArg("execution_id", fmt.Sprintf("%d", msg.ExecutionID))
	p.SetCustomArg("step_number", fmt.Sprintf("%d", msg.StepNumber))
	m.AddPersonalizations(p)

	m.AddContent(
		mail.NewContent("text/plain", msg.Body),
		mail.NewContent("text/html", htmlBody(msg.Body, msg.Language)),
	)
	m.AddCategories(category)
	return m
}

// htmlBody escapes the rendered text and keeps its line breaks
func htmlBody(body string, lang models.Language) string {
	dir := "ltr"
	switch lang {
	case models.LanguageArabic:
		dir = "rtl"
	case models.LanguageBoth:
		dir = "auto"
	}

	escaped := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>\n")
	return fmt.Sprintf(`<html><body><div dir="%s">%s</div></body></html>`, dir, escaped)
}

func (d *Dispatcher) logToConsole(msg followup.Message) *followup.SendResult {
	id := fmt.Sprintf("console-%d-%d-%d", msg.ExecutionID, msg.StepNumber, time.Now().UnixNano())
	d.logger.Info("email NOT sent (development mode)",
		"to", msg.To,
		"subject", msg.Subject,
		"language", msg.Language,
		"execution_id", msg.ExecutionID,
		"step", msg.StepNumber,
		"provider_message_id", id,
	)
	return &followup.SendResult{ProviderMessageID: id}
}
