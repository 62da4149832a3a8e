package followup

import (
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultPhoneRegion = "AE"

// TemplateVariables builds the substitution map for one step
func TemplateVariables(inv *models.InvoiceFacts, stepNumber int, now time.Time, loc *time.Location) map[string]string {
	if loc == nil {
		loc = time.UTC
	}
	amount := formatAmount(inv.Amount)
	return map[string]string{
		"customer_name":  inv.CustomerName,
		"invoice_number": inv.Number,
		"amount":         amount,
		"currency":       inv.Currency,
		"amount_due":     strings.TrimSpace(inv.Currency + " " + amount),
		"due_date":       inv.DueDate.In(loc).Format("2 January 2006"),
		"days_overdue":   strconv.Itoa(inv.DaysOverdue(now)),
		"customer_phone": FormatPhone(inv.CustomerPhone, inv.CountryCode),
		"step_number":    strconv.Itoa(stepNumber),
	}
}

func formatAmount(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.2f", v)
}

// FormatPhone renders a phone number in international format, falling back
// to the raw value when it cannot be parsed
func FormatPhone(raw, region string) string {
	if raw == "" {
		return ""
	}
	if region == "" {
		region = defaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}

// composeStep renders the step in its declared language. Bilingual steps
// carry both versions, English first.
func composeStep(r Renderer, step models.SequenceStep, vars map[string]string) (subject, body string) {
	en := func(s string) string { return r.Render(s, vars) }

	switch step.Language {
	case models.LanguageArabic:
		subject, body = step.Subject, step.Body
		if step.SubjectAr != "" {
			subject = step.SubjectAr
		}
		if step.BodyAr != "" {
			body = step.BodyAr
		}
		return en(subject), en(body)
	case models.LanguageBoth:
		subject, body = en(step.Subject), en(step.Body)
		if step.SubjectAr != "" {
			subject += " | " + en(step.SubjectAr)
		}
		if step.BodyAr != "" {
			body += "\n\n" + en(step.BodyAr)
		}
		return subject, body
	default:
		return en(step.Subject), en(step.Body)
	}
}
