// Package scheduler runs the recurrence tick periodically.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/yourusername/billdesk/billing"
)

type Ticker interface {
	RunRecurrenceTick(ctx context.Context, now time.Time) (*billing.TickReport, error)
}

type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Runner struct {
	ticker   Ticker
	lease    Lease
	interval time.Duration
	nowFn    func() time.Time
	log      zerolog.Logger
}

// NewRunner builds a runner. lease may be nil for single-replica deployments.
func NewRunner(ticker Ticker, lease Lease, interval time.Duration, log zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		ticker:   ticker,
		lease:    lease,
		interval: interval,
		nowFn:    func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks immediately and then on every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("recurrence scheduler started")
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("recurrence tick failed")
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("recurrence scheduler stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce performs one tick. It returns a nil report when another replica
// holds the lease.
func (r *Runner) RunOnce(ctx context.Context) (*billing.TickReport, error) {
	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Debug().Msg("recurrence tick skipped, lease held elsewhere")
			return nil, nil
		}
		defer func() {
			if err := r.lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.log.Warn().Err(err).Msg("lease release failed")
			}
		}()
	}
	return r.ticker.RunRecurrenceTick(ctx, r.nowFn())
}
