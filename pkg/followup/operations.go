package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/analytics"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Stop halts a non-terminal execution on operator request
func (e *Executor) Stop(ctx context.Context, executionID int64, reason string) (*Result, error) {
	release, err := e.locker.Acquire(ctx, ExecutionLockKey(executionID))
	if err != nil {
		return nil, err
	}
	defer release()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.IsTerminal() {
		return nil, domain.NewConflictError(fmt.Sprintf("execution %d is already %s", exec.ID, exec.Status))
	}
	if reason == "" {
		reason = ReasonManualStop
	}
	return e.stop(ctx, exec, reason)
}

// Resume returns an ERROR execution to WAITING_FOR_WINDOW at the next legal instant.
// The failed step is attempted again by the next Continue.
func (e *Executor) Resume(ctx context.Context, executionID int64) (*Result, error) {
	release, err := e.locker.Acquire(ctx, ExecutionLockKey(executionID))
	if err != nil {
		return nil, err
	}
	defer release()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != models.StatusError {
		return nil, domain.NewConflictError(fmt.Sprintf("only executions in ERROR can be resumed, execution %d is %s", exec.ID, exec.Status))
	}

	sched, err := e.schedulerFor(ctx, exec.OrganizationID)
	if err != nil {
		return nil, err
	}
	next, err := sched.GetNextAvailableSendTime(e.clock.Now(), e.sendOpts)
	if err != nil {
		return nil, err
	}
	next = next.UTC()

	exec.Status = models.StatusWaitingForWindow
	exec.NextSendAt = &next
	exec.LastError = ""
	exec.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	e.metrics.RecordTransition(string(exec.Status))
	e.execLogger(exec).Info("Execution resumed", "next_send_at", next)
	return &Result{Success: true, Execution: exec, Message: "execution resumed"}, nil
}

// StopForInvoice stops every open execution of a paid invoice and returns how many were stopped
func (e *Executor) StopForInvoice(ctx context.Context, invoiceID int64, reason string) (int, error) {
	open, err := e.store.ListOpenExecutionsForInvoice(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to list open executions: %w", err)
	}

	stopped := 0
	for _, o := range open {
		release, err := e.locker.Acquire(ctx, ExecutionLockKey(o.ID))
		if err != nil {
			return stopped, err
		}
		exec, err := e.store.GetExecution(ctx, o.ID)
		if err == nil && !exec.Status.IsTerminal() {
			_, err = e.stop(ctx, exec, reason)
			if err == nil {
				stopped++
			}
		}
		release()
		if err != nil {
			return stopped, err
		}
	}
	return stopped, nil
}

// BatchError is one failed execution in a sweep
type BatchError struct {
	ExecutionID int64  `json:"execution_id"`
	Error       string `json:"error"`
}

// BatchResult summarizes ProcessPendingExecutions
type BatchResult struct {
	Processed     int          `json:"processed"`
	Succeeded     int          `json:"succeeded"`
	Errored       int          `json:"errored"`
	StepsExecuted int          `json:"steps_executed"`
	Errors        []BatchError `json:"errors"`
	Duration      string       `json:"duration"`
}

// ProcessPendingExecutions continues every due execution. One execution
// failing never aborts the rest of the batch.
func (e *Executor) ProcessPendingExecutions(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	due, err := e.store.ListDueExecutions(ctx, e.clock.Now(), e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due executions: %w", err)
	}

	result := &BatchResult{Errors: []BatchError{}}
	var mu sync.Mutex

	var g errgroup.Group
	if e.sweepLimit > 0 {
		g.SetLimit(e.sweepLimit)
	}
	for _, exec := range due {
		id := exec.ID
		g.Go(func() error {
			res, err := e.Continue(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if res != nil {
				result.StepsExecuted += res.StepsExecuted
			}
			switch {
			case err != nil:
				result.Errored++
				result.Errors = append(result.Errors, BatchError{ExecutionID: id, Error: err.Error()})
			case res != nil && !res.Success:
				result.Errored++
				result.Errors = append(result.Errors, BatchError{ExecutionID: id, Error: res.Message})
			default:
				result.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start).String()
	if result.Processed > 0 {
		e.logger.Info("Processed pending executions",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"errored", result.Errored,
			"steps", result.StepsExecuted)
	}
	return result, nil
}

// GetSequenceAnalytics builds the funnel and effectiveness report for a sequence
func (e *Executor) GetSequenceAnalytics(ctx context.Context, sequenceID int64, r models.TimeRange) (*analytics.Report, error) {
	seq, err := e.store.GetSequenceDefinition(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	return e.analytics.SequenceReport(ctx, seq, r)
}
