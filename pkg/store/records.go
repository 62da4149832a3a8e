package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/invoicefollowup/pkg/database"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

var recordColumns = []string{
	"id", "execution_id", "sequence_id", "step_number", "subject", "body", "language",
	"recipient_email", "scheduled_for", "sent_at", "status", "provider_message_id",
	"opened_at", "clicked_at", "responded_at", "retry_count", "error_message", "created_at",
}

func scanRecord(row scanner) (*models.StepExecutionRecord, error) {
	var (
		r                                    models.StepExecutionRecord
		language, status                     string
		sentAt, openedAt, clickedAt, replied sql.NullTime
		errMsg                               sql.NullString
	)
	err := row.Scan(&r.ID, &r.ExecutionID, &r.SequenceID, &r.StepNumber, &r.Subject, &r.Body, &language,
		&r.RecipientEmail, &r.ScheduledFor, &sentAt, &status, &r.ProviderMessageID,
		&openedAt, &clickedAt, &replied, &r.RetryCount, &errMsg, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Language = models.Language(language)
	r.Status = models.DeliveryStatus(status)
	r.ScheduledFor = r.ScheduledFor.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.SentAt = timePtr(sentAt)
	r.OpenedAt = timePtr(openedAt)
	r.ClickedAt = timePtr(clickedAt)
	r.RespondedAt = timePtr(replied)
	r.ErrorMessage = stringPtr(errMsg)
	return &r, nil
}

func (s *Store) selectRecords() *entsql.Selector {
	return s.sb().Select(recordColumns...).From(entsql.Table(database.TableStepRecords))
}

// AppendStepExecutionRecord inserts a record and assigns its ID
func (s *Store) AppendStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error {
	defer s.observe("append_step_record")()

	id, err := insert(ctx, s.db, s.sb().Insert(database.TableStepRecords).
		Columns(recordColumns[1:]...).
		Values(rec.ExecutionID, rec.SequenceID, rec.StepNumber, rec.Subject, rec.Body, string(rec.Language),
			rec.RecipientEmail, utc(rec.ScheduledFor), nullTime(rec.SentAt), string(rec.Status), rec.ProviderMessageID,
			nullTime(rec.OpenedAt), nullTime(rec.ClickedAt), nullTime(rec.RespondedAt), rec.RetryCount,
			nullString(rec.ErrorMessage), utc(rec.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}
	rec.ID = id
	return nil
}

// UpdateStepExecutionRecord writes the mutable fields of a record
func (s *Store) UpdateStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error {
	defer s.observe("update_step_record")()

	query, args := s.sb().Update(database.TableStepRecords).
		Set("sent_at", nullTime(rec.SentAt)).
		Set("status", string(rec.Status)).
		Set("provider_message_id", rec.ProviderMessageID).
		Set("opened_at", nullTime(rec.OpenedAt)).
		Set("clicked_at", nullTime(rec.ClickedAt)).
		Set("responded_at", nullTime(rec.RespondedAt)).
		Set("retry_count", rec.RetryCount).
		Set("error_message", nullString(rec.ErrorMessage)).
		Where(entsql.EQ("id", rec.ID)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError("step record")
	}
	return nil
}

// ListStepExecutionRecords returns a sequence's records created within r
func (s *Store) ListStepExecutionRecords(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.StepExecutionRecord, error) {
	defer s.observe("list_step_records")()

	sel := s.selectRecords().Where(entsql.EQ("sequence_id", sequenceID))
	applyRange(sel, "created_at", r)
	return s.queryRecords(ctx, sel.OrderBy(entsql.Asc("id")))
}

// ListRecordsForExecution returns an execution's records in send order
func (s *Store) ListRecordsForExecution(ctx context.Context, executionID int64) ([]*models.StepExecutionRecord, error) {
	defer s.observe("list_execution_records")()

	return s.queryRecords(ctx, s.selectRecords().
		Where(entsql.EQ("execution_id", executionID)).
		OrderBy(entsql.Asc("id")))
}

// FindRecordByProviderMessageID resolves a provider callback to its record
func (s *Store) FindRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.StepExecutionRecord, error) {
	defer s.observe("find_step_record")()

	query, args := s.selectRecords().
		Where(entsql.EQ("provider_message_id", providerMessageID)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("step record")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load step record: %w", err)
	}
	return rec, nil
}

// FindSentRecord returns the latest record of an execution step with a send time
func (s *Store) FindSentRecord(ctx context.Context, executionID int64, stepNumber int) (*models.StepExecutionRecord, error) {
	defer s.observe("find_sent_record")()

	query, args := s.selectRecords().
		Where(entsql.And(
			entsql.EQ("execution_id", executionID),
			entsql.EQ("step_number", stepNumber),
			entsql.NotNull("sent_at"),
		)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("step record")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load step record: %w", err)
	}
	return rec, nil
}

func (s *Store) queryRecords(ctx context.Context, sel *entsql.Selector) ([]*models.StepExecutionRecord, error) {
	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step records: %w", err)
	}
	defer rows.Close()

	out := []*models.StepExecutionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
