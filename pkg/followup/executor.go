package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/analytics"
	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/clock"
	"github.com/jordanlanch/invoicefollowup/pkg/compliance"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/jordanlanch/invoicefollowup/pkg/render"
)

// Stop reasons recorded on executions
const (
	ReasonPaymentReceived     = models.StopReasonPaymentReceived
	ReasonSequenceDeactivated = models.StopReasonSequenceDeactivated
	ReasonManualStop          = models.StopReasonManual
)

// StartOptions tunes Start
type StartOptions struct {
	StartImmediately bool `json:"start_immediately"`
}

// StartRequest identifies what to start and why
type StartRequest struct {
	SequenceID int64          `json:"sequence_id" validate:"required"`
	InvoiceID  int64          `json:"invoice_id" validate:"required"`
	Trigger    models.Trigger `json:"trigger"`
	Options    StartOptions   `json:"options"`
}

// Result is the outcome of Start, Continue, Stop or Resume
type Result struct {
	Success       bool              `json:"success"`
	Execution     *models.Execution `json:"execution,omitempty"`
	StepsExecuted int               `json:"steps_executed"`
	Message       string            `json:"message,omitempty"`
}

// Executor drives sequence executions through their state machine
type Executor struct {
	store      Store
	pool       *DispatchPool
	scheduler  *businesstime.Scheduler
	validator  *compliance.Validator
	renderer   Renderer
	locker     Locker
	clock      clock.Clock
	analytics  *analytics.Aggregator
	metrics    *metrics.Metrics
	logger     logger.Logger
	retry      RetryPolicy
	sendOpts   businesstime.SendOptions
	batchSize  int
	sweepLimit int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor
type Option func(*Executor)

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithLocker sets the per-execution locker
func WithLocker(l Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// WithValidator sets the compliance validator
func WithValidator(v *compliance.Validator) Option {
	return func(e *Executor) { e.validator = v }
}

// WithRenderer sets the template renderer
func WithRenderer(r Renderer) Option {
	return func(e *Executor) { e.renderer = r }
}

// WithMetrics enables Prometheus recording
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRetryPolicy sets the dispatch retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.retry = p }
}

// WithSendOptions sets the business-window options used for mandatory scheduling
func WithSendOptions(o businesstime.SendOptions) Option {
	return func(e *Executor) { e.sendOpts = o }
}

// WithSweepLimits bounds ProcessPendingExecutions
func WithSweepLimits(batchSize, concurrency int) Option {
	return func(e *Executor) {
		e.batchSize = batchSize
		e.sweepLimit = concurrency
	}
}

// NewExecutor creates an executor. The analytics aggregator reads from the same store.
func NewExecutor(store Store, pool *DispatchPool, scheduler *businesstime.Scheduler, opts ...Option) *Executor {
	e := &Executor{
		store:      store,
		pool:       pool,
		scheduler:  scheduler,
		validator:  compliance.NewValidator(nil),
		renderer:   render.New(),
		locker:     NewLocalLocker(0),
		clock:      clock.Real{},
		logger:     logger.Default(),
		retry:      DefaultRetryPolicy(),
		batchSize:  500,
		sweepLimit: 10,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.analytics = analytics.NewAggregator(store, e.logger).WithLocation(scheduler.Location())
	return e
}

// Start creates an execution for an invoice and either sends step 1 now or
// schedules it after the step delay.
func (e *Executor) Start(ctx context.Context, req StartRequest) (*Result, error) {
	if err := ValidateTrigger(req.Trigger); err != nil {
		return nil, err
	}

	seq, err := e.store.GetSequenceDefinition(ctx, req.SequenceID)
	if err != nil {
		return nil, err
	}
	inv, err := e.store.GetInvoiceFacts(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if seq.OrganizationID != inv.OrganizationID {
		return nil, domain.NewNotFoundError("sequence")
	}
	if err := ValidateDefinition(seq); err != nil {
		return nil, err
	}
	if !seq.Active {
		return nil, domain.NewValidationError(fmt.Sprintf("sequence %d is not active", seq.ID))
	}

	now := e.clock.Now()
	if !EvaluateTrigger(req.Trigger, inv, now) {
		return nil, domain.NewValidationError("trigger condition is not met by the invoice")
	}

	paid, err := e.store.HasPayment(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}
	if paid {
		return nil, domain.NewValidationError("invoice has already been paid")
	}

	release, err := e.locker.Acquire(ctx, startLockKey(seq.ID, inv.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	open, err := e.store.ListOpenExecutionsForInvoice(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open executions: %w", err)
	}
	for _, o := range open {
		if o.SequenceID == seq.ID {
			return nil, domain.NewConflictError(fmt.Sprintf("execution %d is already running this sequence for invoice %d", o.ID, inv.ID))
		}
	}

	exec := &models.Execution{
		SequenceID:     seq.ID,
		InvoiceID:      inv.ID,
		OrganizationID: inv.OrganizationID,
		Trigger:        req.Trigger,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	e.metrics.RecordExecutionStarted()
	e.metrics.RecordTransition(string(models.StatusActive))

	log := e.execLogger(exec)
	log.Info("Execution started", "trigger", req.Trigger.Type, "immediate", req.Options.StartImmediately)

	releaseExec, err := e.locker.Acquire(ctx, ExecutionLockKey(exec.ID))
	if err != nil {
		return nil, err
	}
	defer releaseExec()

	sched, err := e.schedulerFor(ctx, exec.OrganizationID)
	if err != nil {
		return e.fail(ctx, exec, err)
	}

	if req.Options.StartImmediately {
		if !sched.IsSendable(now, e.sendOpts) {
			return e.park(ctx, exec, sched, now, "outside the business window; step 1 rescheduled")
		}
		return e.executeStep(ctx, exec, seq, inv, sched)
	}

	target := now.AddDate(0, 0, seq.Steps[0].DelayDays)
	return e.park(ctx, exec, sched, target, "step 1 scheduled")
}

// Continue re-enters an execution. Payment is checked first on every call;
// at most one step is sent per call.
func (e *Executor) Continue(ctx context.Context, executionID int64) (*Result, error) {
	release, err := e.locker.Acquire(ctx, ExecutionLockKey(executionID))
	if err != nil {
		return nil, err
	}
	defer release()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return e.advance(ctx, exec)
}

func (e *Executor) advance(ctx context.Context, exec *models.Execution) (*Result, error) {
	if exec.Status.IsTerminal() {
		return &Result{Success: true, Execution: exec, Message: fmt.Sprintf("execution is %s", exec.Status)}, nil
	}

	paid, err := e.store.HasPayment(ctx, exec.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}
	if paid {
		return e.stop(ctx, exec, ReasonPaymentReceived)
	}

	seq, err := e.store.GetSequenceDefinition(ctx, exec.SequenceID)
	if err != nil {
		if domain.IsNotFound(err) {
			return e.fail(ctx, exec, err)
		}
		return nil, err
	}
	if seq.Quarantined {
		return e.fail(ctx, exec, domain.NewValidationError(fmt.Sprintf("sequence is quarantined: %s", seq.QuarantineReason)))
	}
	if !seq.Active {
		return e.stop(ctx, exec, ReasonSequenceDeactivated)
	}
	if exec.CurrentStep > len(seq.Steps) {
		return e.fail(ctx, exec, domain.NewValidationError(fmt.Sprintf("current step %d exceeds %d steps", exec.CurrentStep, len(seq.Steps))))
	}
	if exec.CurrentStep == len(seq.Steps) {
		return e.complete(ctx, exec)
	}

	now := e.clock.Now()
	if exec.NextSendAt != nil && now.Before(*exec.NextSendAt) {
		return &Result{Success: true, Execution: exec, Message: "next step is not due yet"}, nil
	}

	sched, err := e.schedulerFor(ctx, exec.OrganizationID)
	if err != nil {
		return e.fail(ctx, exec, err)
	}
	if !sched.IsSendable(now, e.sendOpts) {
		return e.park(ctx, exec, sched, now, "outside the business window; step rescheduled")
	}

	inv, err := e.store.GetInvoiceFacts(ctx, exec.InvoiceID)
	if err != nil {
		return nil, err
	}
	return e.executeStep(ctx, exec, seq, inv, sched)
}

// executeStep sends the current step. The caller holds the execution lock.
func (e *Executor) executeStep(ctx context.Context, exec *models.Execution, seq *models.SequenceDefinition, inv *models.InvoiceFacts, sched *businesstime.Scheduler) (*Result, error) {
	idx := exec.CurrentStep
	step := seq.Steps[idx]
	now := e.clock.Now()
	log := e.execLogger(exec).With("step", step.StepNumber)

	// a step already handed to the provider is never sent twice
	prior, err := e.store.FindSentRecord(ctx, exec.ID, step.StepNumber)
	if err != nil && !domain.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check sent records: %w", err)
	}
	if prior != nil && prior.SentAt != nil {
		log.Warn("Step was already sent, advancing without dispatch", "record_id", prior.ID)
		res, err := e.advanceAfterSend(ctx, exec, seq, sched, step, *prior.SentAt)
		if res != nil {
			res.StepsExecuted = 0
		}
		return res, err
	}

	vars := TemplateVariables(inv, step.StepNumber, now, sched.Location())
	subject, body := composeStep(e.renderer, step, vars)
	if missing := render.Unresolved(subject+" "+body, vars); len(missing) > 0 {
		log.Warn("Unresolved template placeholders", "placeholders", missing)
	}

	verdict := e.validator.ValidateStep(seq, idx, subject, body, inv.CustomerTier)
	e.metrics.RecordCompliance(string(inv.CustomerTier), verdict.CulturalScore, !verdict.IsAppropriate)
	if !verdict.IsAppropriate {
		blocked := domain.NewComplianceBlockedError(verdict.CulturalScore, verdict.Issues)
		log.Warn("Step blocked by compliance check", "score", verdict.CulturalScore, "issues", verdict.Issues)
		exec.Status = models.StatusError
		exec.NextSendAt = nil
		exec.LastError = blocked.Error()
		exec.UpdatedAt = now
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("failed to update execution: %w", err)
		}
		e.metrics.RecordTransition(string(exec.Status))
		return &Result{Success: false, Execution: exec, Message: blocked.Error()}, blocked
	}

	scheduledFor := now
	if exec.NextSendAt != nil {
		scheduledFor = *exec.NextSendAt
	}
	rec := &models.StepExecutionRecord{
		ExecutionID:    exec.ID,
		SequenceID:     exec.SequenceID,
		StepNumber:     step.StepNumber,
		Subject:        subject,
		Body:           body,
		Language:       step.Language,
		RecipientEmail: inv.CustomerEmail,
		ScheduledFor:   scheduledFor,
		Status:         models.DeliveryQueued,
		CreatedAt:      now,
	}
	if err := e.store.AppendStepExecutionRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append step record: %w", err)
	}

	msg := Message{
		To:          inv.CustomerEmail,
		ToName:      inv.CustomerName,
		Subject:     subject,
		Body:        body,
		Language:    step.Language,
		ExecutionID: exec.ID,
		StepNumber:  step.StepNumber,
	}
	sent, err := e.dispatchWithRetry(ctx, rec, msg, log)
	if err != nil {
		errMsg := err.Error()
		rec.Status = models.DeliveryFailed
		rec.ErrorMessage = &errMsg
		if uerr := e.store.UpdateStepExecutionRecord(ctx, rec); uerr != nil {
			log.Error("Failed to mark step record as failed", "error", uerr)
		}
		res, ferr := e.fail(ctx, exec, err)
		if ferr != nil {
			return nil, ferr
		}
		return res, err
	}

	sentAt := e.clock.Now()
	rec.Status = models.DeliverySent
	rec.SentAt = &sentAt
	rec.ProviderMessageID = sent.ProviderMessageID
	if err := e.store.UpdateStepExecutionRecord(ctx, rec); err != nil {
		log.Error("Failed to mark step record as sent", "record_id", rec.ID, "error", err)
	}
	log.Info("Step sent", "provider_message_id", sent.ProviderMessageID, "retries", rec.RetryCount)
	return e.advanceAfterSend(ctx, exec, seq, sched, step, sentAt)
}

// advanceAfterSend moves past a sent step: COMPLETED after the last one,
// otherwise WAITING_FOR_WINDOW until the next step is due.
func (e *Executor) advanceAfterSend(ctx context.Context, exec *models.Execution, seq *models.SequenceDefinition, sched *businesstime.Scheduler, step models.SequenceStep, sentAt time.Time) (*Result, error) {
	exec.CurrentStep++
	exec.LastError = ""

	var (
		res *Result
		err error
	)
	if exec.CurrentStep == len(seq.Steps) {
		res, err = e.complete(ctx, exec)
	} else {
		next := seq.Steps[exec.CurrentStep]
		res, err = e.park(ctx, exec, sched, sentAt.AddDate(0, 0, next.DelayDays), fmt.Sprintf("step %d sent", step.StepNumber))
	}
	if res != nil {
		res.StepsExecuted = 1
	}
	return res, err
}

func (e *Executor) dispatchWithRetry(ctx context.Context, rec *models.StepExecutionRecord, msg Message, log logger.Logger) (*SendResult, error) {
	attempts := e.retry.Attempts()
	for attempt := 1; ; attempt++ {
		res, err := e.pool.Send(ctx, msg)
		if err == nil {
			return res, nil
		}
		if !domain.IsRetryable(err) || attempt >= attempts {
			log.Error("Dispatch failed", "attempt", attempt, "error", err)
			return nil, err
		}

		rec.RetryCount = attempt
		if uerr := e.store.UpdateStepExecutionRecord(ctx, rec); uerr != nil {
			log.Warn("Failed to store retry count", "error", uerr)
		}
		e.metrics.RecordDispatchRetry()

		wait := e.retry.Backoff(attempt)
		log.Warn("Dispatch failed, retrying", "attempt", attempt, "backoff", wait.String(), "error", err)
		if serr := e.sleep(ctx, wait); serr != nil {
			return nil, domain.NewDispatchError(serr, false)
		}
	}
}

// park moves the execution to WAITING_FOR_WINDOW at the next legal instant >= target
func (e *Executor) park(ctx context.Context, exec *models.Execution, sched *businesstime.Scheduler, target time.Time, msg string) (*Result, error) {
	next, err := sched.GetNextAvailableSendTime(target, e.sendOpts)
	if err != nil {
		return e.fail(ctx, exec, err)
	}
	next = next.UTC()
	exec.Status = models.StatusWaitingForWindow
	exec.NextSendAt = &next
	exec.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	e.metrics.RecordTransition(string(exec.Status))
	return &Result{Success: true, Execution: exec, Message: msg}, nil
}

func (e *Executor) complete(ctx context.Context, exec *models.Execution) (*Result, error) {
	now := e.clock.Now()
	exec.Status = models.StatusCompleted
	exec.NextSendAt = nil
	exec.CompletedAt = &now
	exec.UpdatedAt = now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	e.metrics.RecordTransition(string(exec.Status))
	e.execLogger(exec).Info("Execution completed", "steps", exec.CurrentStep)
	return &Result{Success: true, Execution: exec, Message: "all steps sent"}, nil
}

func (e *Executor) stop(ctx context.Context, exec *models.Execution, reason string) (*Result, error) {
	now := e.clock.Now()
	exec.Status = models.StatusStopped
	exec.StopReason = reason
	exec.NextSendAt = nil
	exec.StoppedAt = &now
	exec.UpdatedAt = now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	e.metrics.RecordTransition(string(exec.Status))
	e.execLogger(exec).Info("Execution stopped", "reason", reason)
	return &Result{Success: true, Execution: exec, Message: reason}, nil
}

// fail moves the execution to ERROR; the cause is returned to the caller as
// the result message, not as an error
func (e *Executor) fail(ctx context.Context, exec *models.Execution, cause error) (*Result, error) {
	exec.Status = models.StatusError
	exec.LastError = cause.Error()
	exec.NextSendAt = nil
	exec.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	e.metrics.RecordTransition(string(exec.Status))
	e.execLogger(exec).Error("Execution failed", "error", cause)
	return &Result{Success: false, Execution: exec, Message: cause.Error()}, nil
}

func (e *Executor) schedulerFor(ctx context.Context, organizationID int64) (*businesstime.Scheduler, error) {
	hours, err := e.store.GetOrganizationHours(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization hours: %w", err)
	}
	return e.scheduler.WithHours(hours)
}

func (e *Executor) execLogger(exec *models.Execution) logger.Logger {
	return e.logger.With("execution_id", exec.ID, "sequence_id", exec.SequenceID, "invoice_id", exec.InvoiceID)
}

// Scheduler returns the default business-window scheduler
func (e *Executor) Scheduler() *businesstime.Scheduler {
	return e.scheduler
}

// Validator returns the compliance validator
func (e *Executor) Validator() *compliance.Validator {
	return e.validator
}
