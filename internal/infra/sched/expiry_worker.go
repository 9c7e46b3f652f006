package sched

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/usecase"
)

// ExpiryWorker sweeps on a fixed period. The first sweep happens one interval
// after start; startup catch-up is the RecoveryWorker's job.
type ExpiryWorker struct {
	r runner
}

func NewExpiryWorker(sweep usecase.SweepUseCase, stats usecase.SubscriptionUseCase, lock SweepLock, clock adapter.Clock, opts Options, logger *zerolog.Logger) *ExpiryWorker {
	opts.defaults()
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{r: runner{sweep: sweep, stats: stats, lock: lock, clock: clock, opts: opts, log: &l}}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.r.log.Info().Dur("interval", w.r.opts.Interval).Msg("Starting expiry worker")
	ticker := w.r.clock.NewTicker(w.r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.r.log.Info().Msg("Stopping expiry worker")
			return nil
		case <-ticker.C():
			w.r.run(ctx, "periodic")
		}
	}
}
