package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/database"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// CreateSequence validates and stores a sequence, assigning its ID
func (s *Store) CreateSequence(ctx context.Context, seq *models.SequenceDefinition) error {
	defer s.observe("create_sequence")()

	if err := followup.ValidateSteps(seq.Steps); err != nil {
		return err
	}
	raw, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	now := time.Now().UTC()
	id, err := insert(ctx, s.db, s.sb().Insert(database.TableSequences).
		Columns("organization_id", "name", "active", "steps", "created_at", "updated_at").
		Values(seq.OrganizationID, seq.Name, seq.Active, string(raw), now, now))
	if err != nil {
		return fmt.Errorf("failed to create sequence: %w", err)
	}
	seq.ID = id
	return nil
}

// SetSequenceActive activates or deactivates a sequence
func (s *Store) SetSequenceActive(ctx context.Context, id int64, active bool) error {
	defer s.observe("set_sequence_active")()

	query, args := s.sb().Update(database.TableSequences).
		Set("active", active).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError("sequence")
	}
	return nil
}

// GetSequenceDefinition loads a sequence. Steps that fail to decode or
// validate mark the sequence quarantined instead of failing the read.
func (s *Store) GetSequenceDefinition(ctx context.Context, id int64) (*models.SequenceDefinition, error) {
	defer s.observe("get_sequence")()

	query, args := s.sb().Select("id", "organization_id", "name", "active", "steps").
		From(entsql.Table(database.TableSequences)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		seq models.SequenceDefinition
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&seq.ID, &seq.OrganizationID, &seq.Name, &seq.Active, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("sequence")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sequence: %w", err)
	}

	steps, perr := followup.ParseSteps(raw)
	if perr != nil {
		seq.Quarantined = true
		seq.QuarantineReason = perr.Error()
		s.logger.Warn("Sequence quarantined", "sequence_id", seq.ID, "reason", seq.QuarantineReason)
		return &seq, nil
	}
	seq.Steps = steps
	return &seq, nil
}

// CreateInvoice stores invoice facts, assigning the ID
func (s *Store) CreateInvoice(ctx context.Context, inv *models.InvoiceFacts) error {
	defer s.observe("create_invoice")()

	id, err := insert(ctx, s.db, s.sb().Insert(database.TableInvoices).
		Columns("organization_id", "number", "status", "due_date", "currency", "amount",
			"customer_name", "customer_email", "customer_phone", "customer_tier", "country_code").
		Values(inv.OrganizationID, inv.Number, inv.Status, utc(inv.DueDate), inv.Currency, inv.Amount,
			inv.CustomerName, inv.CustomerEmail, inv.CustomerPhone, string(inv.CustomerTier), inv.CountryCode))
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	inv.ID = id
	return nil
}

// GetInvoiceFacts loads the read-only invoice view
func (s *Store) GetInvoiceFacts(ctx context.Context, id int64) (*models.InvoiceFacts, error) {
	defer s.observe("get_invoice")()

	query, args := s.sb().Select("id", "organization_id", "number", "status", "due_date", "currency", "amount",
		"customer_name", "customer_email", "customer_phone", "customer_tier", "country_code").
		From(entsql.Table(database.TableInvoices)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		inv  models.InvoiceFacts
		tier string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&inv.ID, &inv.OrganizationID, &inv.Number, &inv.Status,
		&inv.DueDate, &inv.Currency, &inv.Amount, &inv.CustomerName, &inv.CustomerEmail, &inv.CustomerPhone,
		&tier, &inv.CountryCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("invoice")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	inv.DueDate = inv.DueDate.UTC()
	inv.CustomerTier = models.Tier(tier)
	return &inv, nil
}

// RecordPayment stores a payment once per provider reference.
// It reports false when the payment was already recorded.
func (s *Store) RecordPayment(ctx context.Context, p *models.Payment) (bool, error) {
	defer s.observe("record_payment")()

	if _, err := s.GetInvoiceFacts(ctx, p.InvoiceID); err != nil {
		return false, err
	}

	query, args := s.sb().Select("id").
		From(entsql.Table(database.TablePayments)).
		Where(entsql.And(
			entsql.EQ("provider", p.Provider),
			entsql.EQ("provider_reference", p.ProviderReference),
		)).
		Query()
	var existing int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&existing)
	if err == nil {
		p.ID = existing
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to look up payment: %w", err)
	}

	id, err := insert(ctx, s.db, s.sb().Insert(database.TablePayments).
		Columns("invoice_id", "amount", "currency", "provider", "provider_reference", "paid_at").
		Values(p.InvoiceID, p.Amount, p.Currency, p.Provider, p.ProviderReference, utc(p.PaidAt)))
	if err != nil {
		return false, fmt.Errorf("failed to record payment: %w", err)
	}
	p.ID = id
	return true, nil
}

// HasPayment reports whether any payment exists for the invoice
func (s *Store) HasPayment(ctx context.Context, invoiceID int64) (bool, error) {
	defer s.observe("has_payment")()

	query, args := s.sb().Select(entsql.Count("*")).
		From(entsql.Table(database.TablePayments)).
		Where(entsql.EQ("invoice_id", invoiceID)).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count payments: %w", err)
	}
	return n > 0, nil
}

// SetOrganizationHours stores an organization's working week
func (s *Store) SetOrganizationHours(ctx context.Context, organizationID int64, hours businesstime.BusinessHours) error {
	defer s.observe("set_organization_hours")()

	if err := hours.Validate(); err != nil {
		return err
	}
	days := make([]string, 0, len(hours.WorkingDays))
	for _, d := range hours.WorkingDays {
		days = append(days, strconv.Itoa(int(d)))
	}
	query, args := s.sb().Insert(database.TableOrganizationHours).
		Columns("organization_id", "working_days", "start_hour", "end_hour").
		Values(organizationID, strings.Join(days, ","), hours.StartHour, hours.EndHour).
		OnConflict(entsql.ConflictColumns("organization_id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store organization hours: %w", err)
	}
	return nil
}

// GetOrganizationHours returns nil when the organization uses the default week
func (s *Store) GetOrganizationHours(ctx context.Context, organizationID int64) (*businesstime.BusinessHours, error) {
	defer s.observe("get_organization_hours")()

	query, args := s.sb().Select("working_days", "start_hour", "end_hour").
		From(entsql.Table(database.TableOrganizationHours)).
		Where(entsql.EQ("organization_id", organizationID)).
		Query()

	var (
		days  string
		hours businesstime.BusinessHours
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&days, &hours.StartHour, &hours.EndHour)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization hours: %w", err)
	}
	for _, d := range strings.Split(days, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil || n < 0 || n > 6 {
			return nil, domain.NewValidationError(fmt.Sprintf("organization %d has invalid working day %q", organizationID, d))
		}
		hours.WorkingDays = append(hours.WorkingDays, time.Weekday(n))
	}
	return &hours, nil
}
