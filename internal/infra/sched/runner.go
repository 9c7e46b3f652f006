package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/infra/metrics"
	"subscription-ledger/internal/infra/redis"
	"subscription-ledger/internal/usecase"
)

const sweepLockKey = "ledger:sweep"

// SweepLock keeps replicas from sweeping at the same time. Correctness does
// not depend on it; the sweep's conditional updates already make concurrent
// runs safe.
type SweepLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type Options struct {
	Interval      time.Duration
	RecoveryDelay time.Duration
	RunTimeout    time.Duration
	LockTTL       time.Duration
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 6 * time.Hour
	}
	if o.RecoveryDelay <= 0 {
		o.RecoveryDelay = 30 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 5 * time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Minute
	}
}

// runner is the part shared by the periodic and the recovery worker.
type runner struct {
	sweep usecase.SweepUseCase
	stats usecase.SubscriptionUseCase // optional
	lock  SweepLock                   // optional
	clock adapter.Clock
	opts  Options
	log   *zerolog.Logger
}

// run executes one sweep. It reports false when another replica holds the lock.
func (r *runner) run(ctx context.Context, trigger string) (usecase.SweepReport, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
	defer cancel()

	if r.lock != nil {
		token, err := r.lock.TryLock(ctx, sweepLockKey, r.opts.LockTTL)
		switch {
		case errors.Is(err, redis.ErrLockHeld):
			r.log.Info().Str("trigger", trigger).Msg("sweep skipped; another instance holds the lock")
			return usecase.SweepReport{}, false
		case err != nil:
			r.log.Warn().Err(err).Msg("sweep lock unavailable; running unguarded")
		default:
			defer func() {
				if err := r.lock.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
					r.log.Warn().Err(err).Msg("sweep lock release failed")
				}
			}()
		}
	}

	start := time.Now()
	rep, err := r.sweep.Run(ctx)
	took := time.Since(start)
	metrics.ObserveSweep(trigger, rep.Warned, rep.Expired, rep.WarnFailures, rep.ExpiryFailures, rep.Pruned, took)

	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	ev.Str("trigger", trigger).
		Int("warned", rep.Warned).
		Int("expired", rep.Expired).
		Int("warn_failures", rep.WarnFailures).
		Int("expiry_failures", rep.ExpiryFailures).
		Int64("pruned", rep.Pruned).
		Dur("took", took).
		Msg("sweep finished")

	r.refreshGauges(ctx)
	return rep, true
}

func (r *runner) refreshGauges(ctx context.Context) {
	if r.stats == nil {
		return
	}
	counts, err := r.stats.CountByStatus(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("subscription counts unavailable")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
