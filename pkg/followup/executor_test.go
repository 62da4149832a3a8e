package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/clock"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/jordanlanch/invoicefollowup/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gst(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, businesstime.GulfStandardTime)
}

// Sunday morning, a working day in the default calendar
var sundayMorning = gst(2025, time.January, 5, 10, 0)

var manual = models.Trigger{Type: models.TriggerManual}

type harness struct {
	store *memStore
	disp  *fakeDispatcher
	clock *clock.Fake
	exec  *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sched, err := businesstime.NewScheduler(businesstime.DefaultCalendar())
	require.NoError(t, err)

	h := &harness{
		store: newMemStore(),
		disp:  &fakeDispatcher{},
		clock: clock.NewFake(sundayMorning),
	}
	pool := NewDispatchPool(h.disp, PoolConfig{Workers: 10, Burst: 1, Timeout: 5 * time.Second}, nil)
	h.exec = NewExecutor(h.store, pool, sched,
		WithClock(h.clock),
		WithLogger(logger.Nop()),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
	)
	return h
}

// seed stores the reminder sequence 1 and invoice 100 for organization 1
func (h *harness) seed(tier models.Tier, firstDelay int) (*models.SequenceDefinition, *models.InvoiceFacts) {
	seq := testdata.ReminderSequence(1, 1, firstDelay)
	inv := h.invoice(100, tier)
	h.store.putSequence(seq)
	return seq, inv
}

func (h *harness) invoice(id int64, tier models.Tier) *models.InvoiceFacts {
	inv := testdata.GenerateInvoice(testdata.InvoiceGeneratorConfig{
		OrganizationID: 1,
		Tier:           tier,
		Now:            sundayMorning,
		Seed:           id,
	}, id)
	h.store.putInvoice(inv)
	return inv
}

func (h *harness) start(t *testing.T, seqID, invID int64, immediate bool) *Result {
	t.Helper()
	res, err := h.exec.Start(context.Background(), StartRequest{
		SequenceID: seqID,
		InvoiceID:  invID,
		Trigger:    manual,
		Options:    StartOptions{StartImmediately: immediate},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (h *harness) stored(t *testing.T, id int64) *models.Execution {
	t.Helper()
	exec, err := h.store.GetExecution(context.Background(), id)
	require.NoError(t, err)
	return exec
}

func TestExecutor_Start(t *testing.T) {
	t.Run("Success - schedules step 1 after its delay", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierCorporate, 3)

		res := h.start(t, 1, 100, false)

		assert.True(t, res.Success)
		assert.Equal(t, 0, res.StepsExecuted)
		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, models.StatusWaitingForWindow, exec.Status)
		assert.Equal(t, 0, exec.CurrentStep)
		require.NotNil(t, exec.NextSendAt)
		assert.True(t, gst(2025, time.January, 8, 10, 0).Equal(*exec.NextSendAt))
		assert.Equal(t, time.UTC, exec.NextSendAt.Location())
		assert.Equal(t, 0, h.disp.callCount())
	})

	t.Run("Success - immediate start sends step 1", func(t *testing.T) {
		h := newHarness(t)
		_, inv := h.seed(models.TierRegular, 0)

		res := h.start(t, 1, 100, true)

		assert.True(t, res.Success)
		assert.Equal(t, 1, res.StepsExecuted)
		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, 1, exec.CurrentStep)
		assert.Equal(t, models.StatusWaitingForWindow, exec.Status)
		assert.True(t, gst(2025, time.January, 12, 10, 0).Equal(*exec.NextSendAt))

		records := h.store.recordsFor(exec.ID)
		require.Len(t, records, 1)
		assert.Equal(t, models.DeliverySent, records[0].Status)
		assert.Equal(t, 1, records[0].StepNumber)
		assert.Equal(t, inv.CustomerEmail, records[0].RecipientEmail)
		assert.Contains(t, records[0].Subject, inv.Number)
		assert.NotContains(t, records[0].Body, "{{")
		assert.NotEmpty(t, records[0].ProviderMessageID)
		require.NotNil(t, records[0].SentAt)
	})

	t.Run("Success - immediate start outside the window parks the execution", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.clock.Set(gst(2025, time.January, 10, 10, 0)) // Friday

		res := h.start(t, 1, 100, true)

		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, models.StatusWaitingForWindow, exec.Status)
		assert.True(t, gst(2025, time.January, 12, 9, 0).Equal(*exec.NextSendAt))
		assert.Equal(t, 0, h.disp.callCount())
	})

	t.Run("Success - organization hours override the default week", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.store.hours[1] = businesstime.BusinessHours{
			WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartHour:   9,
			EndHour:     18,
		}
		h.clock.Set(gst(2025, time.January, 10, 10, 0)) // Friday

		res := h.start(t, 1, 100, true)

		assert.Equal(t, 1, res.StepsExecuted)
		assert.Equal(t, 1, h.disp.callCount())
	})

	t.Run("Error - blocked immediate start moves the execution to ERROR", func(t *testing.T) {
		h := newHarness(t)
		seq := testdata.ReminderSequence(1, 1, 14)
		seq.Steps[0].Body = "Dear {{customer_name}}, pay immediately or legal action will follow. Kind regards"
		h.store.putSequence(seq)
		h.invoice(100, models.TierGovernment)

		res, err := h.exec.Start(context.Background(), StartRequest{
			SequenceID: 1,
			InvoiceID:  100,
			Trigger:    manual,
			Options:    StartOptions{StartImmediately: true},
		})

		require.Error(t, err)
		assert.True(t, domain.IsComplianceBlocked(err))
		require.NotNil(t, res)
		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, models.StatusError, exec.Status)
		assert.Nil(t, exec.NextSendAt)
		assert.Contains(t, exec.LastError, "legal action")
		assert.Equal(t, 0, h.disp.callCount())

		_, err = h.exec.Resume(context.Background(), exec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusWaitingForWindow, h.stored(t, exec.ID).Status)
	})

	t.Run("Error - duplicate start for the same invoice", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.start(t, 1, 100, false)

		_, err := h.exec.Start(context.Background(), StartRequest{SequenceID: 1, InvoiceID: 100, Trigger: manual})

		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
	})

	t.Run("Error - sequence from another organization", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		other := testdata.ReminderSequence(2, 99, 0)
		h.store.putSequence(other)

		_, err := h.exec.Start(context.Background(), StartRequest{SequenceID: 2, InvoiceID: 100, Trigger: manual})

		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Error - missing invoice", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)

		_, err := h.exec.Start(context.Background(), StartRequest{SequenceID: 1, InvoiceID: 404, Trigger: manual})

		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Error - inactive or quarantined sequence", func(t *testing.T) {
		h := newHarness(t)
		seq, _ := h.seed(models.TierRegular, 0)
		seq.Active = false
		h.store.putSequence(seq)

		_, err := h.exec.Start(context.Background(), StartRequest{SequenceID: 1, InvoiceID: 100, Trigger: manual})
		assert.True(t, domain.IsValidation(err))

		seq.Active = true
		seq.Quarantined = true
		seq.QuarantineReason = "steps are not valid JSON"
		h.store.putSequence(seq)

		_, err = h.exec.Start(context.Background(), StartRequest{SequenceID: 1, InvoiceID: 100, Trigger: manual})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - trigger not met", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)

		_, err := h.exec.Start(context.Background(), StartRequest{
			SequenceID: 1,
			InvoiceID:  100,
			Trigger:    models.Trigger{Type: models.TriggerInvoiceStatus, Value: models.InvoiceStatusDraft},
		})

		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - invoice already paid", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.store.pay(100)

		_, err := h.exec.Start(context.Background(), StartRequest{SequenceID: 1, InvoiceID: 100, Trigger: manual})

		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestExecutor_StartConcurrent(t *testing.T) {
	h := newHarness(t)
	h.store.putSequence(testdata.ReminderSequence(1, 1, 0))
	const n = 50
	for i := int64(1); i <= n; i++ {
		h.invoice(i, models.TierRegular)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := h.exec.Start(context.Background(), StartRequest{
				SequenceID: 1,
				InvoiceID:  id,
				Trigger:    manual,
				Options:    StartOptions{StartImmediately: true},
			})
			if err == nil && res.Success && res.StepsExecuted == 1 {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, succeeded, n*9/10)
	assert.Equal(t, succeeded, h.disp.callCount())
}

func TestExecutor_Continue(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - payment stops the execution before any send", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierCorporate, 3)
		res := h.start(t, 1, 100, false)
		h.store.pay(100)
		h.clock.Set(gst(2025, time.January, 8, 10, 0))

		res, err := h.exec.Continue(ctx, res.Execution.ID)

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, res.StepsExecuted)
		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, models.StatusStopped, exec.Status)
		assert.Equal(t, ReasonPaymentReceived, exec.StopReason)
		assert.NotNil(t, exec.StoppedAt)
		assert.Nil(t, exec.NextSendAt)
		assert.Equal(t, 0, h.disp.callCount())
	})

	t.Run("Success - nothing happens before the step is due", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierCorporate, 3)
		started := h.start(t, 1, 100, false)

		res, err := h.exec.Continue(ctx, started.Execution.ID)

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "next step is not due yet", res.Message)
		assert.Equal(t, models.StatusWaitingForWindow, h.stored(t, started.Execution.ID).Status)
		assert.Equal(t, 0, h.disp.callCount())
	})

	t.Run("Success - sends one step per call after a long outage", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, true)
		h.clock.Set(gst(2025, time.March, 6, 10, 0))

		res, err := h.exec.Continue(ctx, started.Execution.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.StepsExecuted)
		assert.Equal(t, 2, h.stored(t, started.Execution.ID).CurrentStep)

		res, err = h.exec.Continue(ctx, started.Execution.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, res.StepsExecuted)
		assert.Equal(t, 2, h.disp.callCount())
	})

	t.Run("Success - runs every step to completion", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, true)
		id := started.Execution.ID

		for i := 0; i < 2; i++ {
			exec := h.stored(t, id)
			require.NotNil(t, exec.NextSendAt)
			h.clock.Set(*exec.NextSendAt)
			res, err := h.exec.Continue(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1, res.StepsExecuted)
		}

		exec := h.stored(t, id)
		assert.Equal(t, models.StatusCompleted, exec.Status)
		assert.Equal(t, 3, exec.CurrentStep)
		assert.NotNil(t, exec.CompletedAt)
		assert.Nil(t, exec.NextSendAt)

		records := h.store.recordsFor(id)
		require.Len(t, records, 3)
		for i, rec := range records {
			assert.Equal(t, i+1, rec.StepNumber)
			assert.Equal(t, models.DeliverySent, rec.Status)
		}
		assert.Contains(t, records[1].Body, "مع التحية")

		res, err := h.exec.Continue(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, res.StepsExecuted)
		assert.Equal(t, 3, h.disp.callCount())
	})

	t.Run("Success - deactivated sequence stops the execution", func(t *testing.T) {
		h := newHarness(t)
		seq, _ := h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, false)
		seq.Active = false
		h.store.putSequence(seq)

		res, err := h.exec.Continue(ctx, started.Execution.ID)

		require.NoError(t, err)
		exec := h.stored(t, res.Execution.ID)
		assert.Equal(t, models.StatusStopped, exec.Status)
		assert.Equal(t, ReasonSequenceDeactivated, exec.StopReason)
	})

	t.Run("Error - quarantined sequence moves the execution to ERROR", func(t *testing.T) {
		h := newHarness(t)
		seq, _ := h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, false)
		seq.Quarantined = true
		seq.QuarantineReason = "step numbers repeat"
		h.store.putSequence(seq)

		res, err := h.exec.Continue(ctx, started.Execution.ID)

		require.NoError(t, err)
		assert.False(t, res.Success)
		exec := h.stored(t, started.Execution.ID)
		assert.Equal(t, models.StatusError, exec.Status)
		assert.Contains(t, exec.LastError, "quarantined")
	})

	t.Run("Error - compliance block moves the execution to ERROR until resumed", func(t *testing.T) {
		h := newHarness(t)
		seq := testdata.ReminderSequence(1, 1, 14)
		courteous := seq.Steps[0].Body
		seq.Steps[0].Body = "Dear {{customer_name}}, pay immediately or legal action will follow. Kind regards"
		h.store.putSequence(seq)
		h.invoice(100, models.TierGovernment)
		started := h.start(t, 1, 100, false)
		exec := h.stored(t, started.Execution.ID)
		h.clock.Set(*exec.NextSendAt)

		res, err := h.exec.Continue(ctx, exec.ID)

		require.Error(t, err)
		assert.True(t, domain.IsComplianceBlocked(err))
		assert.False(t, res.Success)
		exec = h.stored(t, exec.ID)
		assert.Equal(t, models.StatusError, exec.Status)
		assert.Nil(t, exec.NextSendAt)
		assert.Equal(t, 0, exec.CurrentStep)
		assert.Contains(t, exec.LastError, "legal action")
		assert.Empty(t, h.store.recordsFor(exec.ID))
		assert.Equal(t, 0, h.disp.callCount())

		for i := 0; i < 3; i++ {
			h.clock.Advance(time.Minute)
			batch, err := h.exec.ProcessPendingExecutions(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, batch.Processed)
		}

		seq.Steps[0].Body = courteous
		h.store.putSequence(seq)
		_, err = h.exec.Resume(ctx, exec.ID)
		require.NoError(t, err)
		h.clock.Set(*h.stored(t, exec.ID).NextSendAt)

		res, err = h.exec.Continue(ctx, exec.ID)

		require.NoError(t, err)
		assert.Equal(t, 1, res.StepsExecuted)
		assert.Equal(t, 1, h.stored(t, exec.ID).CurrentStep)
		assert.Equal(t, 1, h.disp.callCount())
	})

	t.Run("Error - step already sent is not dispatched again", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, false)
		exec := h.stored(t, started.Execution.ID)
		h.clock.Set(*exec.NextSendAt)
		h.store.failUpdates = 1

		_, err := h.exec.Continue(ctx, exec.ID)

		require.Error(t, err)
		assert.Equal(t, 1, h.disp.callCount())
		exec = h.stored(t, exec.ID)
		assert.Equal(t, 0, exec.CurrentStep)

		res, err := h.exec.Continue(ctx, exec.ID)

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, res.StepsExecuted)
		assert.Equal(t, 1, h.disp.callCount())
		exec = h.stored(t, exec.ID)
		assert.Equal(t, 1, exec.CurrentStep)
		assert.Equal(t, models.StatusWaitingForWindow, exec.Status)
		records := h.store.recordsFor(exec.ID)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].SentAt)
		assert.False(t, exec.NextSendAt.Before(records[0].SentAt.AddDate(0, 0, 7)))
	})

	t.Run("Error - missing execution", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.exec.Continue(ctx, 999)

		assert.True(t, domain.IsNotFound(err))
	})
}

func TestExecutor_DispatchRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - retryable failure recovers", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.disp.failFor = func(msg Message, call int) error {
			if call == 1 {
				return errors.New("connection reset")
			}
			return nil
		}

		res := h.start(t, 1, 100, true)

		assert.Equal(t, 1, res.StepsExecuted)
		records := h.store.recordsFor(res.Execution.ID)
		require.Len(t, records, 1)
		assert.Equal(t, models.DeliverySent, records[0].Status)
		assert.Equal(t, 1, records[0].RetryCount)
		assert.Equal(t, 2, h.disp.callCount())
	})

	t.Run("Error - exhausted retries fail the step, then resume", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.disp.failFor = func(msg Message, call int) error {
			return errors.New("mail server unavailable")
		}

		res, err := h.exec.Start(ctx, StartRequest{
			SequenceID: 1,
			InvoiceID:  100,
			Trigger:    manual,
			Options:    StartOptions{StartImmediately: true},
		})

		require.Error(t, err)
		assert.True(t, domain.IsDispatch(err))
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Equal(t, 3, h.disp.callCount())

		id := res.Execution.ID
		exec := h.stored(t, id)
		assert.Equal(t, models.StatusError, exec.Status)
		assert.Contains(t, exec.LastError, "mail server unavailable")

		records := h.store.recordsFor(id)
		require.Len(t, records, 1)
		assert.Equal(t, models.DeliveryFailed, records[0].Status)
		assert.Equal(t, 2, records[0].RetryCount)
		require.NotNil(t, records[0].ErrorMessage)

		h.disp.failFor = nil
		resumed, err := h.exec.Resume(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusWaitingForWindow, resumed.Execution.Status)
		assert.Empty(t, resumed.Execution.LastError)

		cont, err := h.exec.Continue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, cont.StepsExecuted)
		assert.Equal(t, 1, h.stored(t, id).CurrentStep)
		assert.Len(t, h.store.recordsFor(id), 2)
	})

	t.Run("Error - non-retryable failure is not retried", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.disp.failFor = func(msg Message, call int) error {
			return domain.NewDispatchError(errors.New("invalid recipient"), false)
		}

		res, err := h.exec.Start(ctx, StartRequest{
			SequenceID: 1,
			InvoiceID:  100,
			Trigger:    manual,
			Options:    StartOptions{StartImmediately: true},
		})

		require.Error(t, err)
		assert.False(t, domain.IsRetryable(err))
		assert.Equal(t, 1, h.disp.callCount())
		assert.Equal(t, models.StatusError, h.stored(t, res.Execution.ID).Status)
	})
}

func TestExecutor_ConcurrentContinue(t *testing.T) {
	h := newHarness(t)
	h.seed(models.TierRegular, 0)
	started := h.start(t, 1, 100, false)
	id := started.Execution.ID

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.exec.Continue(context.Background(), id)
		}()
	}
	wg.Wait()

	assert.Len(t, h.store.recordsFor(id), 1)
	assert.Equal(t, 1, h.stored(t, id).CurrentStep)
	assert.Equal(t, 1, h.disp.callCount())
}

func TestExecutor_ProcessPendingExecutions(t *testing.T) {
	h := newHarness(t)
	h.store.putSequence(testdata.ReminderSequence(1, 1, 0))
	var failing string
	for i := int64(1); i <= 3; i++ {
		inv := h.invoice(i, models.TierRegular)
		if i == 2 {
			failing = inv.CustomerEmail
		}
		h.start(t, 1, i, false)
	}
	h.disp.failFor = func(msg Message, call int) error {
		if msg.To == failing {
			return domain.NewDispatchError(errors.New("mailbox does not exist"), false)
		}
		return nil
	}

	result, err := h.exec.ProcessPendingExecutions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Errored)
	assert.Equal(t, 2, result.StepsExecuted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(2), result.Errors[0].ExecutionID)

	again, err := h.exec.ProcessPendingExecutions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestExecutor_StopAndResume(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - operator stop uses the default reason", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, false)

		res, err := h.exec.Stop(ctx, started.Execution.ID, "")

		require.NoError(t, err)
		assert.Equal(t, models.StatusStopped, res.Execution.Status)
		assert.Equal(t, ReasonManualStop, res.Execution.StopReason)

		_, err = h.exec.Stop(ctx, started.Execution.ID, "")
		assert.True(t, domain.IsConflict(err))
	})

	t.Run("Error - only ERROR executions can be resumed", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		started := h.start(t, 1, 100, false)

		_, err := h.exec.Resume(ctx, started.Execution.ID)

		assert.True(t, domain.IsConflict(err))
	})

	t.Run("Success - stop every open execution of a paid invoice", func(t *testing.T) {
		h := newHarness(t)
		h.seed(models.TierRegular, 0)
		h.store.putSequence(testdata.ReminderSequence(2, 1, 0))
		first := h.start(t, 1, 100, false)
		second := h.start(t, 2, 100, false)

		stopped, err := h.exec.StopForInvoice(ctx, 100, ReasonPaymentReceived)

		require.NoError(t, err)
		assert.Equal(t, 2, stopped)
		assert.Equal(t, models.StatusStopped, h.stored(t, first.Execution.ID).Status)
		assert.Equal(t, ReasonPaymentReceived, h.stored(t, second.Execution.ID).StopReason)

		stopped, err = h.exec.StopForInvoice(ctx, 100, ReasonPaymentReceived)
		require.NoError(t, err)
		assert.Equal(t, 0, stopped)
	})
}

func TestExecutor_RecordDeliveryEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(models.TierRegular, 0)
	started := h.start(t, 1, 100, true)
	rec := h.store.recordsFor(started.Execution.ID)[0]
	firstOpen := sundayMorning.Add(time.Hour)

	changed, err := h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventDelivered})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventOpened, OccurredAt: firstOpen})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventOpened, OccurredAt: firstOpen.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventBounced, Reason: "mailbox full"})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventClicked})
	require.NoError(t, err)
	assert.True(t, changed)

	replied := firstOpen.Add(2 * time.Hour)
	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventReplied, OccurredAt: replied})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: rec.ProviderMessageID, Type: EventReplied, OccurredAt: replied.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, changed)

	updated := h.store.recordsFor(started.Execution.ID)[0]
	assert.Equal(t, models.DeliveryDelivered, updated.Status)
	require.NotNil(t, updated.OpenedAt)
	assert.True(t, firstOpen.Equal(*updated.OpenedAt))
	assert.NotNil(t, updated.ClickedAt)
	require.NotNil(t, updated.RespondedAt)
	assert.True(t, replied.Equal(*updated.RespondedAt))
	assert.Nil(t, updated.ErrorMessage)

	_, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{ProviderMessageID: "unknown", Type: EventOpened})
	assert.True(t, domain.IsNotFound(err))

	_, err = h.exec.RecordDeliveryEvent(ctx, DeliveryEvent{Type: EventOpened})
	assert.True(t, domain.IsValidation(err))
}

func TestExecutor_GetSequenceAnalytics(t *testing.T) {
	h := newHarness(t)
	h.seed(models.TierRegular, 0)
	h.start(t, 1, 100, true)

	report, err := h.exec.GetSequenceAnalytics(context.Background(), 1, models.TimeRange{})

	require.NoError(t, err)
	assert.Equal(t, int64(1), report.SequenceID)
	assert.Equal(t, int64(1), report.TotalExecutions)
}
