package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every minute
const DefaultSchedule = "@every 1m"

// Processor continues every due execution
type Processor interface {
	ProcessPendingExecutions(ctx context.Context) (*followup.BatchResult, error)
}

// SweeperConfig configures the periodic sweep
type SweeperConfig struct {
	Schedule string
	Timeout  time.Duration
}

// Sweeper runs ProcessPendingExecutions on a cron schedule.
// A run still in progress when the next tick fires is skipped.
type Sweeper struct {
	cron      *cron.Cron
	processor Processor
	cfg       SweeperConfig
	logger    logger.Logger
	metrics   *metrics.Metrics
	hub       *sentry.Hub
}

// NewSweeper creates a new sweeper. A nil hub reports to the global Sentry hub.
func NewSweeper(p Processor, cfg SweeperConfig, log logger.Logger, m *metrics.Metrics, hub *sentry.Hub) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	cl := cronLogger{log}
	return &Sweeper{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		processor: p,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		hub:       hub,
	}
}

// SetupJobs registers the sweep with the scheduler
func (s *Sweeper) SetupJobs() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", s.cfg.Schedule, err)
	}

	s.logger.Info("Cron jobs configured", "sweep_schedule", s.cfg.Schedule)
	return nil
}

// RunOnce sweeps due executions immediately
func (s *Sweeper) RunOnce(ctx context.Context) (*followup.BatchResult, error) {
	start := time.Now()
	result, err := s.processor.ProcessPendingExecutions(ctx)
	if err != nil {
		s.metrics.RecordSweep(time.Since(start), 1)
		s.hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", "sweeper")
			s.hub.CaptureException(err)
		})
		return nil, err
	}

	s.metrics.RecordSweep(time.Since(start), result.Errored)
	for _, be := range result.Errors {
		s.report(be)
	}
	return result, nil
}

func (s *Sweeper) report(be followup.BatchError) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "sweeper")
		scope.SetTag("execution_id", strconv.FormatInt(be.ExecutionID, 10))
		s.hub.CaptureException(errors.New(be.Error))
	})
}

// Start starts the cron scheduler
func (s *Sweeper) Start() {
	s.logger.Info("Starting cron scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx to expire
func (s *Sweeper) Stop(ctx context.Context) {
	s.logger.Info("Stopping cron scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Sweep still running at shutdown")
	}
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
