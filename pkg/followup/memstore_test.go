package followup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// memStore is an in-memory Store that copies values in and out like a database would
type memStore struct {
	mu         sync.Mutex
	sequences  map[int64]models.SequenceDefinition
	invoices   map[int64]models.InvoiceFacts
	payments   map[int64]bool
	executions map[int64]models.Execution
	records    map[int64]models.StepExecutionRecord
	hours      map[int64]businesstime.BusinessHours
	nextExec   int64
	nextRecord int64
	// failUpdates makes the next n UpdateExecution calls fail
	failUpdates int
}

func newMemStore() *memStore {
	return &memStore{
		sequences:  map[int64]models.SequenceDefinition{},
		invoices:   map[int64]models.InvoiceFacts{},
		payments:   map[int64]bool{},
		executions: map[int64]models.Execution{},
		records:    map[int64]models.StepExecutionRecord{},
		hours:      map[int64]businesstime.BusinessHours{},
	}
}

func (s *memStore) putSequence(seq *models.SequenceDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *seq
	cp.Steps = append([]models.SequenceStep(nil), seq.Steps...)
	s.sequences[seq.ID] = cp
}

func (s *memStore) putInvoice(inv *models.InvoiceFacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = *inv
}

func (s *memStore) pay(invoiceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[invoiceID] = true
}

func (s *memStore) recordsFor(executionID int64) []models.StepExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StepExecutionRecord
	for _, r := range s.records {
		if r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) GetSequenceDefinition(ctx context.Context, id int64) (*models.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return nil, domain.NewNotFoundError("sequence")
	}
	seq.Steps = append([]models.SequenceStep(nil), seq.Steps...)
	return &seq, nil
}

func (s *memStore) GetInvoiceFacts(ctx context.Context, id int64) (*models.InvoiceFacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.NewNotFoundError("invoice")
	}
	return &inv, nil
}

func (s *memStore) HasPayment(ctx context.Context, invoiceID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[invoiceID], nil
}

func (s *memStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExec++
	exec.ID = s.nextExec
	exec.Version = 1
	s.executions[exec.ID] = *exec
	return nil
}

func (s *memStore) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, domain.NewNotFoundError("execution")
	}
	return &exec, nil
}

func (s *memStore) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates > 0 {
		s.failUpdates--
		return errors.New("database is unavailable")
	}
	stored, ok := s.executions[exec.ID]
	if !ok {
		return domain.NewNotFoundError("execution")
	}
	if stored.Version != exec.Version {
		return domain.NewConflictError(fmt.Sprintf("execution %d was modified concurrently", exec.ID))
	}
	exec.Version++
	s.executions[exec.ID] = *exec
	return nil
}

func (s *memStore) ListDueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Execution
	for _, e := range s.executions {
		if e.Status == models.StatusWaitingForWindow && e.NextSendAt != nil && !e.NextSendAt.After(now) {
			cp := e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListExecutions(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Execution
	for _, e := range s.executions {
		if e.SequenceID == sequenceID && r.Contains(e.CreatedAt) {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenExecutionsForInvoice(ctx context.Context, invoiceID int64) ([]*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Execution
	for _, e := range s.executions {
		if e.InvoiceID == invoiceID && !e.Status.IsTerminal() {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) AppendStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecord++
	rec.ID = s.nextRecord
	s.records[rec.ID] = *rec
	return nil
}

func (s *memStore) UpdateStepExecutionRecord(ctx context.Context, rec *models.StepExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return domain.NewNotFoundError("step record")
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *memStore) ListStepExecutionRecords(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.StepExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.StepExecutionRecord
	for _, rec := range s.records {
		if rec.SequenceID == sequenceID && r.Contains(rec.CreatedAt) {
			cp := rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) FindRecordByProviderMessageID(ctx context.Context, providerMessageID string) (*models.StepExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ProviderMessageID == providerMessageID {
			cp := rec
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("step record")
}

func (s *memStore) FindSentRecord(ctx context.Context, executionID int64, stepNumber int) (*models.StepExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.StepExecutionRecord
	for _, rec := range s.records {
		if rec.ExecutionID == executionID && rec.StepNumber == stepNumber && rec.SentAt != nil {
			if found == nil || rec.ID > found.ID {
				cp := rec
				found = &cp
			}
		}
	}
	if found == nil {
		return nil, domain.NewNotFoundError("step record")
	}
	return found, nil
}

func (s *memStore) GetOrganizationHours(ctx context.Context, organizationID int64) (*businesstime.BusinessHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hours[organizationID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// fakeDispatcher records messages and fails according to failFor
type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []Message
	calls   int
	failFor func(msg Message, call int) error
}

func (d *fakeDispatcher) Send(ctx context.Context, msg Message) (*SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failFor != nil {
		if err := d.failFor(msg, d.calls); err != nil {
			return nil, err
		}
	}
	d.sent = append(d.sent, msg)
	return &SendResult{ProviderMessageID: fmt.Sprintf("msg-%d-%d", msg.ExecutionID, msg.StepNumber)}, nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
