package followup

import (
	"context"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// Store is the persistence contract consumed by the executor
type Store interface {
	GetSequenceDefinition(ctx context.Context, id int64) (*models.SequenceDefinition, error)
	GetInvoiceFacts(ctx context.Context, id int64) (*models.InvoiceFacts, error)
	HasPayment(ctx context.Context, invoiceID int64) (bool, error)

	// CreateExecution assigns ID and Version
	CreateExecution(ctx context.Context, exec *models.Execution) error
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
	// UpdateExecution writes the whole record if the stored version matches
	// exec.Version, then increments exec.Version. A mismatch is a ConflictError.
	UpdateExecution(ctx context.Context, exec *models.Execution) error
	ListDueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)
	ListExecutions(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.Execution, error)
	ListOpenExecutionsForInvoice(ctx context.Context, invoiceID int64) ([]*models.Execution, error)

	// AppendStepExecutionRecord assigns ID
	AppendStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error
	UpdateStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error
	ListStepExecutionRecords(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.StepExecutionRecord, error)
	FindRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.StepExecutionRecord, error)
	// FindSentRecord returns the latest record of a step that reached the provider
	FindSentRecord(ctx context.Context, executionID int64, stepNumber int) (*models.StepExecutionRecord, error)

	// GetOrganizationHours returns nil when the organization uses the default week
	GetOrganizationHours(ctx context.Context, organizationID int64) (*businesstime.BusinessHours, error)
}

// Renderer substitutes template variables. Unknown placeholders stay verbatim.
type Renderer interface {
	Render(tmpl string, vars map[string]string) string
}
