package email

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/sendgrid/sendgrid-go/helpers/eventwebhook"
)

// Signature headers sent with signed event webhooks
const (
	SignatureHeader = eventwebhook.VerificationHTTPHeader
	TimestampHeader = eventwebhook.TimestampHTTPHeader
)

// webhookEvent is one entry of a SendGrid event webhook batch
type webhookEvent struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	SGEventID   string `json:"sg_event_id"`
	Reason      string `json:"reason"`
	Response    string `json:"response"`
}

var eventTypes = map[string]followup.EventType{
	"delivered": followup.EventDelivered,
	"open":      followup.EventOpened,
	"click":     followup.EventClicked,
	"bounce":    followup.EventBounced,
	"dropped":   followup.EventDropped,
}

// ParseEvents decodes a webhook batch into delivery events.
// Events the engine does not track (processed, deferred, spamreport...) are skipped.
func ParseEvents(body []byte) ([]followup.DeliveryEvent, error) {
	var raw []webhookEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid sendgrid event payload: %v", err))
	}

	events := make([]followup.DeliveryEvent, 0, len(raw))
	for _, ev := range raw {
		t, ok := eventTypes[ev.Event]
		if !ok || ev.SGMessageID == "" {
			continue
		}

		reason := ev.Reason
		if reason == "" {
			reason = ev.Response
		}

		events = append(events, followup.DeliveryEvent{
			ProviderMessageID: messageID(ev.SGMessageID),
			Type:              t,
			OccurredAt:        time.Unix(ev.Timestamp, 0).UTC(),
			Reason:            reason,
		})
	}
	return events, nil
}

// messageID strips the filter suffix SendGrid appends to the X-Message-Id
// (e.g. "abc123.filter0001.16648.5515E0B88.0" -> "abc123")
func messageID(sgMessageID string) string {
	if i := strings.Index(sgMessageID, "."); i > 0 {
		return sgMessageID[:i]
	}
	return sgMessageID
}

// Verifier checks the ECDSA signature of signed event webhooks
type Verifier struct {
	publicKey *ecdsa.PublicKey
}

// NewVerifier parses the base64 verification key from the SendGrid settings page
func NewVerifier(publicKeyBase64 string) (*Verifier, error) {
	key, err := eventwebhook.ConvertPublicKeyBase64ToECDSA(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook verification key: %w", err)
	}
	return &Verifier{publicKey: key}, nil
}

// Verify returns a validation error when the signature does not match the payload
func (v *Verifier) Verify(payload []byte, signature, timestamp string) error {
	if signature == "" || timestamp == "" {
		return domain.NewValidationError("missing webhook signature")
	}

	ok, err := eventwebhook.VerifySignature(v.publicKey, payload, signature, timestamp)
	if err != nil {
		return domain.NewValidationError(fmt.Sprintf("malformed webhook signature: %v", err))
	}
	if !ok {
		return domain.NewValidationError("invalid webhook signature")
	}
	return nil
}
