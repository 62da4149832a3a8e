package models

import "time"

// ExecutionStatus is the state of a sequence execution
type ExecutionStatus string

const (
	StatusPending          ExecutionStatus = "PENDING"
	StatusActive           ExecutionStatus = "ACTIVE"
	StatusWaitingForWindow ExecutionStatus = "WAITING_FOR_WINDOW"
	StatusCompleted        ExecutionStatus = "COMPLETED"
	StatusStopped          ExecutionStatus = "STOPPED"
	StatusError            ExecutionStatus = "ERROR"
)

// IsTerminal reports whether no further steps will run
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusError
}

// TriggerType identifies what justified starting an execution
type TriggerType string

const (
	TriggerInvoiceStatus TriggerType = "INVOICE_STATUS"
	TriggerDueDate       TriggerType = "DUE_DATE"
	TriggerManual        TriggerType = "MANUAL"
)

// Trigger operators
const (
	OperatorEquals             = "EQUALS"
	OperatorNotEquals          = "NOT_EQUALS"
	OperatorGreaterThan        = "GREATER_THAN"
	OperatorGreaterThanOrEqual = "GREATER_THAN_OR_EQUAL"
	OperatorLessThan           = "LESS_THAN"
)

// Trigger is the condition that started an execution
type Trigger struct {
	Type     TriggerType `json:"type" validate:"required,oneof=INVOICE_STATUS DUE_DATE MANUAL"`
	Value    string      `json:"value,omitempty"`
	Operator string      `json:"operator,omitempty" validate:"omitempty,oneof=EQUALS NOT_EQUALS GREATER_THAN GREATER_THAN_OR_EQUAL LESS_THAN"`
}

// Execution is one running instance of a sequence against one invoice
type Execution struct {
	ID             int64           `json:"id"`
	SequenceID     int64           `json:"sequence_id"`
	InvoiceID      int64           `json:"invoice_id"`
	OrganizationID int64           `json:"organization_id"`
	Trigger        Trigger         `json:"trigger"`
	CurrentStep    int             `json:"current_step"`
	Status         ExecutionStatus `json:"status"`
	NextSendAt     *time.Time      `json:"next_send_at,omitempty"`
	StopReason     string          `json:"stop_reason,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	StoppedAt      *time.Time      `json:"stopped_at,omitempty"`
}

// DeliveryStatus is the per-step delivery state
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "QUEUED"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryBounced   DeliveryStatus = "BOUNCED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// IsTerminal reports whether the delivery status is final
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryBounced || s == DeliveryFailed
}

// StepExecutionRecord is the delivery log entry for one step of one execution
type StepExecutionRecord struct {
	ID                int64          `json:"id"`
	ExecutionID       int64          `json:"execution_id"`
	SequenceID        int64          `json:"sequence_id"`
	StepNumber        int            `json:"step_number"`
	Subject           string         `json:"subject"`
	Body              string         `json:"body"`
	Language          Language       `json:"language"`
	RecipientEmail    string         `json:"recipient_email"`
	ScheduledFor      time.Time      `json:"scheduled_for"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty"`
	ClickedAt         *time.Time     `json:"clicked_at,omitempty"`
	RespondedAt       *time.Time     `json:"responded_at,omitempty"`
	RetryCount        int            `json:"retry_count"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// TimeRange bounds record queries; zero ends are open
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Stop reasons recorded on executions
const (
	StopReasonPaymentReceived     = "Payment received"
	StopReasonSequenceDeactivated = "Sequence deactivated"
	StopReasonManual              = "Stopped by operator"
)
