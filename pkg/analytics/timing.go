package analytics

import (
	"sort"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// TimeDistribution summarizes a set of durations in hours
type TimeDistribution struct {
	Count        int64            `json:"count"`
	AverageHours float64          `json:"average_hours"`
	MedianHours  float64          `json:"median_hours"`
	Distribution map[string]int64 `json:"distribution"`
}

// TimingMetrics covers scheduling lag and engagement delay
type TimingMetrics struct {
	// SendLag is scheduled-for to sent
	SendLag TimeDistribution `json:"send_lag"`
	// TimeToOpen is sent to first open
	TimeToOpen TimeDistribution `json:"time_to_open"`
	// BestOpenHour is the local hour with most opens, -1 without opens
	BestOpenHour int `json:"best_open_hour"`
}

func buildTiming(records []*models.StepExecutionRecord, loc *time.Location) TimingMetrics {
	var lag, open []float64
	var byHour [24]int64
	opens := false

	for _, r := range records {
		if r.SentAt == nil {
			continue
		}
		if d := r.SentAt.Sub(r.ScheduledFor); d >= 0 {
			lag = append(lag, d.Hours())
		}
		if r.OpenedAt != nil {
			if d := r.OpenedAt.Sub(*r.SentAt); d >= 0 {
				open = append(open, d.Hours())
			}
			byHour[r.OpenedAt.In(loc).Hour()]++
			opens = true
		}
	}

	best := -1
	if opens {
		best = 0
		for h := 1; h < 24; h++ {
			if byHour[h] > byHour[best] {
				best = h
			}
		}
	}

	return TimingMetrics{
		SendLag:      calculateTimeDistribution(lag),
		TimeToOpen:   calculateTimeDistribution(open),
		BestOpenHour: best,
	}
}

var buckets = []struct {
	name     string
	maxHours float64
}{
	{"0-1 hours", 1},
	{"1-6 hours", 6},
	{"6-24 hours", 24},
	{"1-3 days", 72},
	{"3-7 days", 168},
}

const overflowBucket = "7+ days"

// calculateTimeDistribution calculates average, median and bucket counts
func calculateTimeDistribution(hours []float64) TimeDistribution {
	dist := make(map[string]int64, len(buckets)+1)
	for _, b := range buckets {
		dist[b.name] = 0
	}
	dist[overflowBucket] = 0

	if len(hours) == 0 {
		return TimeDistribution{Distribution: dist}
	}

	sorted := append([]float64(nil), hours...)
	sort.Float64s(sorted)

	var sum float64
	for _, h := range sorted {
		sum += h
		placed := false
		for _, b := range buckets {
			if h <= b.maxHours {
				dist[b.name]++
				placed = true
				break
			}
		}
		if !placed {
			dist[overflowBucket]++
		}
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return TimeDistribution{
		Count:        int64(len(sorted)),
		AverageHours: roundRate(sum / float64(len(sorted))),
		MedianHours:  roundRate(median),
		Distribution: dist,
	}
}
