package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// Source supplies the logs folded into reports
type Source interface {
	ListExecutions(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.Execution, error)
	ListStepExecutionRecords(ctx context.Context, sequenceID int64, r models.TimeRange) ([]*models.StepExecutionRecord, error)
}

// Report is the funnel and effectiveness view of one sequence
type Report struct {
	SequenceID      int64            `json:"sequence_id"`
	SequenceName    string           `json:"sequence_name"`
	From            *time.Time       `json:"from,omitempty"`
	To              *time.Time       `json:"to,omitempty"`
	TotalExecutions int64            `json:"total_executions"`
	Funnel          []FunnelStage    `json:"funnel"`
	Steps           []StepMetrics    `json:"steps"`
	Outcome         OutcomeBreakdown `json:"outcome"`
	Timing          TimingMetrics    `json:"timing"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Aggregator builds reports on demand; it keeps no state between calls
type Aggregator struct {
	source Source
	logger logger.Logger
	loc    *time.Location
}

// NewAggregator creates an aggregator over source
func NewAggregator(source Source, log logger.Logger) *Aggregator {
	return &Aggregator{source: source, logger: log, loc: time.UTC}
}

// WithLocation returns a copy that reports hours of day in loc
func (a *Aggregator) WithLocation(loc *time.Location) *Aggregator {
	cp := *a
	if loc != nil {
		cp.loc = loc
	}
	return &cp
}

// SequenceReport loads the logs of seq within r and folds them into a report
func (a *Aggregator) SequenceReport(ctx context.Context, seq *models.SequenceDefinition, r models.TimeRange) (*Report, error) {
	execs, err := a.source.ListExecutions(ctx, seq.ID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	records, err := a.source.ListStepExecutionRecords(ctx, seq.ID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}

	report := Build(seq, execs, records, a.loc)
	if !r.From.IsZero() {
		from := r.From
		report.From = &from
	}
	if !r.To.IsZero() {
		to := r.To
		report.To = &to
	}
	a.logger.Debug("Built sequence report", "sequence_id", seq.ID, "executions", report.TotalExecutions, "records", len(records))
	return report, nil
}

// Build folds executions and step records into a report
func Build(seq *models.SequenceDefinition, execs []*models.Execution, records []*models.StepExecutionRecord, loc *time.Location) *Report {
	if loc == nil {
		loc = time.UTC
	}
	steps := make([]int, 0, len(seq.Steps))
	for _, s := range seq.Steps {
		steps = append(steps, s.StepNumber)
	}

	funnel := buildFunnel(steps, execs, records)
	stepMetrics := buildStepMetrics(steps, records)

	return &Report{
		SequenceID:      seq.ID,
		SequenceName:    seq.Name,
		TotalExecutions: funnel[0].ExecutionCount,
		Funnel:          funnel,
		Steps:           stepMetrics,
		Outcome:         buildOutcome(execs),
		Timing:          buildTiming(records, loc),
		Recommendations: recommend(funnel, stepMetrics),
	}
}
