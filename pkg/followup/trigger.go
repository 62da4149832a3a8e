package followup

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// ValidateTrigger checks the trigger descriptor supplied to Start
func ValidateTrigger(t models.Trigger) error {
	if err := validate.Struct(t); err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid trigger: %v", err))
	}

	switch t.Type {
	case models.TriggerInvoiceStatus:
		if t.Value == "" {
			return domain.NewValidationError("invoice status trigger requires a value")
		}
		if t.Operator != "" && t.Operator != models.OperatorEquals && t.Operator != models.OperatorNotEquals {
			return domain.NewValidationError(fmt.Sprintf("operator %s is not valid for invoice status", t.Operator))
		}
	case models.TriggerDueDate:
		if _, err := strconv.Atoi(t.Value); err != nil {
			return domain.NewValidationError("due date trigger value must be a number of days")
		}
	}
	return nil
}

// EvaluateTrigger reports whether the invoice satisfies the trigger at now.
// Manual triggers always match. Due date triggers compare the signed number
// of days past the due date with the value.
func EvaluateTrigger(t models.Trigger, inv *models.InvoiceFacts, now time.Time) bool {
	switch t.Type {
	case models.TriggerManual:
		return true
	case models.TriggerInvoiceStatus:
		equal := strings.EqualFold(inv.Status, t.Value)
		if t.Operator == models.OperatorNotEquals {
			return !equal
		}
		return equal
	case models.TriggerDueDate:
		want, err := strconv.Atoi(t.Value)
		if err != nil {
			return false
		}
		days := int(math.Floor(now.Sub(inv.DueDate).Hours() / 24))
		switch t.Operator {
		case models.OperatorEquals:
			return days == want
		case models.OperatorNotEquals:
			return days != want
		case models.OperatorGreaterThan:
			return days > want
		case models.OperatorLessThan:
			return days < want
		default:
			return days >= want
		}
	}
	return false
}
