package analytics

import "fmt"

// Thresholds, in percent
const (
	lowOpenRate    = 15.0
	highBounceRate = 5.0
	highStageLoss  = 50.0
	lowClickRate   = 2.0
	minClickSample = 20
)

// Recommendation is a textual suggestion derived from the metrics
type Recommendation struct {
	StepNumber int    `json:"step_number,omitempty"`
	Metric     string `json:"metric"`
	Message    string `json:"message"`
}

func recommend(funnel []FunnelStage, steps []StepMetrics) []Recommendation {
	recs := []Recommendation{}

	for _, m := range steps {
		if m.Sent > 0 && m.OpenRate < lowOpenRate {
			recs = append(recs, Recommendation{
				StepNumber: m.StepNumber,
				Metric:     "open_rate",
				Message:    fmt.Sprintf("Step %d: open rate %.2f%% is below %.0f%%; improve the subject line", m.StepNumber, m.OpenRate, lowOpenRate),
			})
		}
		if m.Attempted > 0 && m.BounceRate > highBounceRate {
			recs = append(recs, Recommendation{
				StepNumber: m.StepNumber,
				Metric:     "bounce_rate",
				Message:    fmt.Sprintf("Step %d: bounce rate %.2f%% is above %.0f%%; check list quality", m.StepNumber, m.BounceRate, highBounceRate),
			})
		}
		if m.Opened >= minClickSample && m.ClickRate < lowClickRate {
			recs = append(recs, Recommendation{
				StepNumber: m.StepNumber,
				Metric:     "click_rate",
				Message:    fmt.Sprintf("Step %d: few readers click through; make the payment link more prominent", m.StepNumber),
			})
		}
	}

	for k := 1; k < len(funnel); k++ {
		prev, cur := funnel[k-1], funnel[k]
		if prev.ExecutionCount == 0 {
			continue
		}
		if loss := 100 - cur.ConversionFromPrevious; loss > highStageLoss {
			recs = append(recs, Recommendation{
				StepNumber: cur.StepNumber,
				Metric:     "dropoff",
				Message:    fmt.Sprintf("%.2f%% of executions stop between %s and %s; review timing and content", loss, prev.Name, cur.Name),
			})
		}
	}

	return recs
}
