package analytics

import (
	"fmt"
	"math"

	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// FunnelStage represents a stage in the follow-up funnel. Stage 0 is "Started".
type FunnelStage struct {
	Name                   string  `json:"name"`
	StepNumber             int     `json:"step_number"`
	ExecutionCount         int64   `json:"execution_count"`
	Percentage             float64 `json:"percentage"`
	ConversionFromPrevious float64 `json:"conversion_from_previous"`
	DropoffCount           int64   `json:"dropoff_count"`
	// DropoffRate is the cumulative loss relative to Started
	DropoffRate float64 `json:"dropoff_rate"`
}

// buildFunnel counts executions that reached at least each step. Counts never
// increase across stages, so the cumulative drop-off never decreases.
func buildFunnel(steps []int, execs []*models.Execution, records []*models.StepExecutionRecord) []FunnelStage {
	position := make(map[int]int, len(steps))
	for i, n := range steps {
		position[n] = i + 1
	}

	reached := make(map[int64]int)
	for _, e := range execs {
		reached[e.ID] = 0
	}
	for _, r := range records {
		if r.SentAt == nil {
			if _, ok := reached[r.ExecutionID]; !ok {
				reached[r.ExecutionID] = 0
			}
			continue
		}
		if pos := position[r.StepNumber]; pos > reached[r.ExecutionID] {
			reached[r.ExecutionID] = pos
		}
	}

	started := int64(len(reached))
	counts := make([]int64, len(steps)+1)
	counts[0] = started
	for _, pos := range reached {
		for k := 1; k <= pos; k++ {
			counts[k]++
		}
	}

	stages := make([]FunnelStage, 0, len(counts))
	stages = append(stages, FunnelStage{
		Name:                   "Started",
		ExecutionCount:         started,
		Percentage:             100.0,
		ConversionFromPrevious: 100.0,
	})
	for k := 1; k < len(counts); k++ {
		pct := calculateRate(counts[k], started)
		if started == 0 {
			pct = 0
		}
		stages = append(stages, FunnelStage{
			Name:                   fmt.Sprintf("Step %d", steps[k-1]),
			StepNumber:             steps[k-1],
			ExecutionCount:         counts[k],
			Percentage:             pct,
			ConversionFromPrevious: calculateRate(counts[k], counts[k-1]),
			DropoffCount:           counts[k-1] - counts[k],
			DropoffRate:            roundRate(100.0 - pct),
		})
	}
	if started == 0 {
		for k := 1; k < len(stages); k++ {
			stages[k].DropoffRate = 0
		}
	}
	return stages
}

// calculateRate returns numerator/denominator as a percentage, 0 when denominator is 0
func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return roundRate(float64(numerator) / float64(denominator) * 100)
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100 // 2 decimal places
}
