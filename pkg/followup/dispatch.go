package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"golang.org/x/time/rate"
)

// Message is one rendered step addressed to a customer
type Message struct {
	To          string
	ToName      string
	Subject     string
	Body        string
	Language    models.Language
	ExecutionID int64
	StepNumber  int
}

// SendResult is the provider's acknowledgement
type SendResult struct {
	ProviderMessageID string
}

// Dispatcher sends a message through the mail provider.
// Failures are returned as dispatch errors; retryable ones may be attempted again.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// PoolConfig bounds outbound dispatch
type PoolConfig struct {
	Workers       int
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// DefaultPoolConfig returns 10 concurrent sends at 10 per second with a 30s timeout
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:       10,
		RatePerSecond: 10,
		Burst:         20,
		Timeout:       30 * time.Second,
	}
}

// DispatchPool runs dispatcher calls with bounded concurrency, an outbound
// rate limit and a per-call timeout. It is shared by every execution.
type DispatchPool struct {
	dispatcher Dispatcher
	slots      chan struct{}
	limiter    *rate.Limiter
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// NewDispatchPool wraps a dispatcher
func NewDispatchPool(d Dispatcher, cfg PoolConfig, m *metrics.Metrics) *DispatchPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &DispatchPool{
		dispatcher: d,
		slots:      make(chan struct{}, cfg.Workers),
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		timeout:    cfg.Timeout,
		metrics:    m,
	}
}

// Send waits for a free worker and the rate limiter, then calls the dispatcher
func (p *DispatchPool) Send(ctx context.Context, msg Message) (*SendResult, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, domain.NewDispatchError(ctx.Err(), false)
	}
	defer func() { <-p.slots }()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, domain.NewDispatchError(fmt.Errorf("rate limiter: %w", err), false)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.dispatcher.Send(callCtx, msg)
	p.metrics.RecordDispatch(err == nil, time.Since(start))
	if err == nil {
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, domain.NewDispatchError(ctx.Err(), false)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, domain.NewDispatchError(fmt.Errorf("dispatch timed out after %s: %w", p.timeout, err), true)
	case domain.IsDispatch(err):
		return nil, err
	default:
		return nil, domain.NewDispatchError(err, true)
	}
}
