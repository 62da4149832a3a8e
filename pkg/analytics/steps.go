package analytics

import "github.com/jordanlanch/invoicefollowup/pkg/models"

// StepMetrics is the delivery and engagement summary of one step
type StepMetrics struct {
	StepNumber   int     `json:"step_number"`
	Attempted    int64   `json:"attempted"`
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Opened       int64   `json:"opened"`
	Clicked      int64   `json:"clicked"`
	Responded    int64   `json:"responded"`
	Bounced      int64   `json:"bounced"`
	Failed       int64   `json:"failed"`
	Retries      int64   `json:"retries"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	ResponseRate float64 `json:"response_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

func buildStepMetrics(steps []int, records []*models.StepExecutionRecord) []StepMetrics {
	byStep := make(map[int]*StepMetrics, len(steps))
	out := make([]StepMetrics, len(steps))
	for i, n := range steps {
		out[i].StepNumber = n
		byStep[n] = &out[i]
	}

	for _, r := range records {
		m, ok := byStep[r.StepNumber]
		if !ok {
			continue
		}
		m.Attempted++
		m.Retries += int64(r.RetryCount)
		if r.SentAt != nil {
			m.Sent++
		}
		switch r.Status {
		case models.DeliveryDelivered:
			m.Delivered++
		case models.DeliveryBounced:
			m.Bounced++
		case models.DeliveryFailed:
			m.Failed++
		}
		if r.OpenedAt != nil {
			m.Opened++
		}
		if r.ClickedAt != nil {
			m.Clicked++
		}
		if r.RespondedAt != nil {
			m.Responded++
		}
	}

	for i := range out {
		m := &out[i]
		m.OpenRate = calculateRate(m.Opened, m.Sent)
		m.ClickRate = calculateRate(m.Clicked, m.Opened)
		m.ResponseRate = calculateRate(m.Responded, m.Sent)
		m.BounceRate = calculateRate(m.Bounced, m.Attempted)
	}
	return out
}

// OutcomeBreakdown counts executions by terminal state
type OutcomeBreakdown struct {
	Completed int64 `json:"completed"`
	Stopped   int64 `json:"stopped"`
	Paid      int64 `json:"paid"`
	Errored   int64 `json:"errored"`
	Active    int64 `json:"active"`
	// PaidAfterStep counts paid executions by the number of steps sent before payment
	PaidAfterStep map[int]int64 `json:"paid_after_step"`
	PaymentRate   float64       `json:"payment_rate"`
}

func buildOutcome(execs []*models.Execution) OutcomeBreakdown {
	o := OutcomeBreakdown{PaidAfterStep: make(map[int]int64)}
	for _, e := range execs {
		switch e.Status {
		case models.StatusCompleted:
			o.Completed++
		case models.StatusStopped:
			o.Stopped++
			if e.StopReason == models.StopReasonPaymentReceived {
				o.Paid++
				o.PaidAfterStep[e.CurrentStep]++
			}
		case models.StatusError:
			o.Errored++
		default:
			o.Active++
		}
	}
	o.PaymentRate = calculateRate(o.Paid, int64(len(execs)))
	return o
}
