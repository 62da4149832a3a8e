package models

import "time"

// Invoice statuses read by the engine
const (
	InvoiceStatusDraft   = "DRAFT"
	InvoiceStatusSent    = "SENT"
	InvoiceStatusOverdue = "OVERDUE"
	InvoiceStatusPaid    = "PAID"
)

// InvoiceFacts is the read-only view of an invoice and its customer
type InvoiceFacts struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Number         string    `json:"number"`
	Status         string    `json:"status"`
	DueDate        time.Time `json:"due_date"`
	Currency       string    `json:"currency"`
	Amount         float64   `json:"amount"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	CustomerPhone  string    `json:"customer_phone,omitempty"`
	CustomerTier   Tier      `json:"customer_tier"`
	CountryCode    string    `json:"country_code,omitempty"`
}

// DaysOverdue returns whole days past the due date at now, never negative
func (i *InvoiceFacts) DaysOverdue(now time.Time) int {
	if !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// Payment is a settlement recorded against an invoice. Any payment row stops follow-ups.
type Payment struct {
	ID                int64     `json:"id"`
	InvoiceID         int64     `json:"invoice_id"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	Provider          string    `json:"provider"`
	ProviderReference string    `json:"provider_reference"`
	PaidAt            time.Time `json:"paid_at"`
}
