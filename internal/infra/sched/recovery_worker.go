package sched

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/usecase"
)

// RecoveryWorker runs one sweep shortly after start to catch up on whatever
// expired or came due while the process was down.
type RecoveryWorker struct {
	r runner
}

func NewRecoveryWorker(sweep usecase.SweepUseCase, stats usecase.SubscriptionUseCase, lock SweepLock, clock adapter.Clock, opts Options, logger *zerolog.Logger) *RecoveryWorker {
	opts.defaults()
	l := logger.With().Str("component", "RecoveryWorker").Logger()
	return &RecoveryWorker{r: runner{sweep: sweep, stats: stats, lock: lock, clock: clock, opts: opts, log: &l}}
}

// Run waits for the recovery delay, sweeps once and returns.
func (w *RecoveryWorker) Run(ctx context.Context) error {
	timer := w.r.clock.NewTimer(w.r.opts.RecoveryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C():
	}
	rep, ran := w.r.run(ctx, "recovery")
	if ran {
		w.r.log.Info().Int("expired", rep.Expired).Int("warned", rep.Warned).Msg("recovery sweep done")
	}
	return nil
}
