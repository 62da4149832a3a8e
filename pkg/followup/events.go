package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// EventType is a provider delivery or engagement event
type EventType string

const (
	EventDelivered EventType = "delivered"
	EventOpened    EventType = "open"
	EventClicked   EventType = "click"
	EventBounced   EventType = "bounce"
	EventDropped   EventType = "dropped"
	EventReplied   EventType = "reply"
)

// DeliveryEvent is a provider callback about a sent step
type DeliveryEvent struct {
	ProviderMessageID string
	Type              EventType
	OccurredAt        time.Time
	Reason            string
}

// RecordDeliveryEvent applies a provider event to the matching step record.
// Status changes only while the record is not terminal; engagement
// timestamps keep their first value. It reports whether the record changed.
func (e *Executor) RecordDeliveryEvent(ctx context.Context, ev DeliveryEvent) (bool, error) {
	if ev.ProviderMessageID == "" {
		return false, domain.NewValidationError("provider message id is required")
	}

	rec, err := e.store.FindRecordByProviderMessageID(ctx, ev.ProviderMessageID)
	if err != nil {
		return false, err
	}

	release, err := e.locker.Acquire(ctx, recordLockKey(rec.ID))
	if err != nil {
		return false, err
	}
	defer release()

	// re-read under the lock
	rec, err = e.store.FindRecordByProviderMessageID(ctx, ev.ProviderMessageID)
	if err != nil {
		return false, err
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = e.clock.Now()
	}
	at = at.UTC()

	if !applyEvent(rec, ev, at) {
		return false, nil
	}
	if err := e.store.UpdateStepExecutionRecord(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to update step record: %w", err)
	}
	return true, nil
}

func applyEvent(rec *models.StepExecutionRecord, ev DeliveryEvent, at time.Time) bool {
	setOnce := func(p **time.Time) bool {
		if *p != nil {
			return false
		}
		t := at
		*p = &t
		return true
	}

	switch ev.Type {
	case EventDelivered:
		if rec.Status.IsTerminal() {
			return false
		}
		rec.Status = models.DeliveryDelivered
		return true
	case EventBounced, EventDropped:
		if rec.Status.IsTerminal() {
			return false
		}
		rec.Status = models.DeliveryBounced
		if ev.Reason != "" {
			reason := ev.Reason
			rec.ErrorMessage = &reason
		}
		return true
	case EventOpened:
		return setOnce(&rec.OpenedAt)
	case EventClicked:
		opened := setOnce(&rec.OpenedAt)
		clicked := setOnce(&rec.ClickedAt)
		return opened || clicked
	case EventReplied:
		return setOnce(&rec.RespondedAt)
	}
	return false
}
