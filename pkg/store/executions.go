package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/invoicefollowup/pkg/database"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

var executionColumns = []string{
	"id", "sequence_id", "invoice_id", "organization_id",
	"trigger_type", "trigger_value", "trigger_operator",
	"current_step", "status", "next_send_at", "stop_reason", "last_error", "version",
	"created_at", "updated_at", "completed_at", "stopped_at",
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		e                                  models.Execution
		triggerType, status                string
		nextSendAt, completedAt, stoppedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.SequenceID, &e.InvoiceID, &e.OrganizationID,
		&triggerType, &e.Trigger.Value, &e.Trigger.Operator,
		&e.CurrentStep, &status, &nextSendAt, &e.StopReason, &e.LastError, &e.Version,
		&e.CreatedAt, &e.UpdatedAt, &completedAt, &stoppedAt)
	if err != nil {
		return nil, err
	}
	e.Trigger.Type = models.TriggerType(triggerType)
	e.Status = models.ExecutionStatus(status)
	e.NextSendAt = timePtr(nextSendAt)
	e.CompletedAt = timePtr(completedAt)
	e.StoppedAt = timePtr(stoppedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (s *Store) queryExecutions(ctx context.Context, sel *entsql.Selector) ([]*models.Execution, error) {
	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	out := []*models.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) selectExecutions() *entsql.Selector {
	return s.sb().Select(executionColumns...).From(entsql.Table(database.TableExecutions))
}

// CreateExecution inserts the execution and assigns ID and Version
func (s *Store) CreateExecution(ctx context.Context, exec *models.Execution) error {
	defer s.observe("create_execution")()

	exec.Version = 1
	id, err := insert(ctx, s.db, s.sb().Insert(database.TableExecutions).
		Columns(executionColumns[1:]...).
		Values(exec.SequenceID, exec.InvoiceID, exec.OrganizationID,
			string(exec.Trigger.Type), exec.Trigger.Value, exec.Trigger.Operator,
			exec.CurrentStep, string(exec.Status), nullTime(exec.NextSendAt), exec.StopReason, exec.LastError, exec.Version,
			utc(exec.CreatedAt), utc(exec.UpdatedAt), nullTime(exec.CompletedAt), nullTime(exec.StoppedAt)))
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	exec.ID = id
	return nil
}

// GetExecution loads one execution
func (s *Store) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	defer s.observe("get_execution")()

	query, args := s.selectExecutions().Where(entsql.EQ("id", id)).Query()
	e, err := scanExecution(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("execution")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	return e, nil
}

// UpdateExecution writes the whole row when the stored version still matches.
// The row is locked for the check on Postgres.
func (s *Store) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	defer s.observe("update_execution")()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sel := s.sb().Select("version").From(entsql.Table(database.TableExecutions)).Where(entsql.EQ("id", exec.ID))
	if s.postgres() {
		sel.ForUpdate()
	}
	query, args := sel.Query()
	var stored int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError("execution")
	}
	if err != nil {
		return fmt.Errorf("failed to lock execution: %w", err)
	}
	if stored != exec.Version {
		return domain.NewConflictError(fmt.Sprintf("execution %d was modified concurrently (version %d, expected %d)", exec.ID, stored, exec.Version))
	}

	query, args = s.sb().Update(database.TableExecutions).
		Set("current_step", exec.CurrentStep).
		Set("status", string(exec.Status)).
		Set("next_send_at", nullTime(exec.NextSendAt)).
		Set("stop_reason", exec.StopReason).
		Set("last_error", exec.LastError).
		Set("version", exec.Version+1).
		Set("updated_at", utc(exec.UpdatedAt)).
		Set("completed_at", nullTime(exec.CompletedAt)).
		Set("stopped_at", nullTime(exec.StoppedAt)).
		Where(entsql.And(entsql.EQ("id", exec.ID), entsql.EQ("version", exec.Version))).
		Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return domain.NewConflictError(fmt.Sprintf("execution %d was modified concurrently", exec.ID))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit execution update: %w", err)
	}
	exec.Version++
	return nil
}

// ListDueExecutions returns waiting executions whose next send time has passed, oldest first
func (s *Store) ListDueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	defer s.observe("list_due_executions")()

	sel := s.selectExecutions().
		Where(entsql.And(
			entsql.EQ("status", string(models.StatusWaitingForWindow)),
			entsql.NotNull("next_send_at"),
			entsql.LTE("next_send_at", now.UTC()),
		)).
		OrderBy(entsql.Asc("next_send_at"), entsql.Asc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}
	return s.queryExecutions(ctx, sel)
}

// ListExecutions returns a sequence's executions created within r
func (s *Store) ListExecutions(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.Execution, error) {
	defer s.observe("list_executions")()

	sel := s.selectExecutions().Where(entsql.EQ("sequence_id", sequenceID))
	applyRange(sel, "created_at", r)
	return s.queryExecutions(ctx, sel.OrderBy(entsql.Asc("id")))
}

// ListOpenExecutionsForInvoice returns every non-terminal execution of the invoice
func (s *Store) ListOpenExecutionsForInvoice(ctx context.Context, invoiceID int64) ([]*models.Execution, error) {
	defer s.observe("list_open_executions")()

	sel := s.selectExecutions().
		Where(entsql.And(
			entsql.EQ("invoice_id", invoiceID),
			entsql.NotIn("status",
				string(models.StatusCompleted), string(models.StatusStopped), string(models.StatusError)),
		)).
		OrderBy(entsql.Asc("id"))
	return s.queryExecutions(ctx, sel)
}

func applyRange(sel *entsql.Selector, column string, r models.TimeRange) {
	if !r.From.IsZero() {
		sel.Where(entsql.GTE(column, r.From.UTC()))
	}
	if !r.To.IsZero() {
		sel.Where(entsql.LT(column, r.To.UTC()))
	}
}
