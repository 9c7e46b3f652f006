package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ SweepUseCase = (*sweepUC)(nil)

// SweepReport summarises one sweep run.
type SweepReport struct {
	Warned         int
	Expired        int
	WarnFailures   int
	ExpiryFailures int
	Pruned         int64
}

// SweepUseCase advances entitlements according to wall-clock time. Every
// transition is guarded by the entitlement's own state, so running it again
// with no time passing changes nothing.
type SweepUseCase interface {
	// WarnExpiring queues one warning per active entitlement expiring within the
	// warning window that has not been warned yet.
	WarnExpiring(ctx context.Context) (warned, failures int, err error)
	// ExpireDue moves active entitlements past their expiry to expired.
	ExpireDue(ctx context.Context) (expired, failures int, err error)
	// PruneTransactions deletes transaction records older than the retention.
	PruneTransactions(ctx context.Context) (int64, error)
	// Run executes the warning pass, the expiry pass and the prune, in that order.
	Run(ctx context.Context) (SweepReport, error)
}

type SweepOptions struct {
	WarningWindow time.Duration
	TxRetention   time.Duration
}

type sweepUC struct {
	subs   repository.SubscriptionRepository
	txns   repository.TransactionRepository
	tm     repository.TransactionManager
	events adapter.EventPublisher
	clock  adapter.Clock
	opts   SweepOptions
	log    *zerolog.Logger
}

func NewSweepUseCase(
	subs repository.SubscriptionRepository,
	txns repository.TransactionRepository,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	clock adapter.Clock,
	opts SweepOptions,
	logger *zerolog.Logger,
) *sweepUC {
	if opts.WarningWindow <= 0 {
		opts.WarningWindow = 24 * time.Hour
	}
	if opts.TxRetention <= 0 {
		opts.TxRetention = time.Hour
	}
	l := logger.With().Str("component", "SweepUC").Logger()
	return &sweepUC{subs: subs, txns: txns, tm: tm, events: events, clock: clock, opts: opts, log: &l}
}

func (uc *sweepUC) Run(ctx context.Context) (SweepReport, error) {
	var (
		rep  SweepReport
		errs []error
		err  error
	)
	if rep.Warned, rep.WarnFailures, err = uc.WarnExpiring(ctx); err != nil {
		errs = append(errs, err)
	}
	if rep.Expired, rep.ExpiryFailures, err = uc.ExpireDue(ctx); err != nil {
		errs = append(errs, err)
	}
	if rep.Pruned, err = uc.PruneTransactions(ctx); err != nil {
		errs = append(errs, err)
	}
	return rep, errors.Join(errs...)
}

func (uc *sweepUC) WarnExpiring(ctx context.Context) (int, int, error) {
	now := uc.clock.Now()
	due, err := uc.subs.FindDueForWarning(ctx, repository.NoTX, now, now.Add(uc.opts.WarningWindow))
	if err != nil {
		return 0, 0, fmt.Errorf("list warning candidates: %w", err)
	}

	warned, failed := 0, 0
	for _, s := range due {
		if err := ctx.Err(); err != nil {
			return warned, failed, err
		}
		ok, err := uc.warnOne(ctx, s)
		if err != nil {
			failed++
			uc.log.Error().Err(err).Str("subscription_id", s.ID).Str("user_id", s.UserID).Msg("expiry warning failed")
			continue
		}
		if ok {
			warned++
		}
	}
	return warned, failed, nil
}

// warnOne claims the warning flag, re-reading the row in the same
// transaction, and queues the event only after the commit. A failed enqueue
// releases the claim for the next run.
func (uc *sweepUC) warnOne(ctx context.Context, s *model.Subscription) (bool, error) {
	// timestamptz keeps microseconds; the release matches on this value
	now := uc.clock.Now().Truncate(time.Microsecond)
	var fresh *model.Subscription
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := uc.subs.MarkWarningSent(ctx, tx, s.ID, now, now.Add(uc.opts.WarningWindow), now)
		if err != nil || !ok {
			return err
		}
		fresh, err = uc.subs.FindByID(ctx, tx, s.ID)
		return err
	})
	if err != nil || fresh == nil {
		return false, err
	}

	if err := uc.events.Publish(ctx, model.LifecycleEvent{Kind: model.EventWarning, Subscription: *fresh, OccurredAt: now}); err != nil {
		uc.release(ctx, "warning", s.ID, func(ctx context.Context) (bool, error) {
			return uc.subs.ReleaseWarning(ctx, repository.NoTX, s.ID, now)
		})
		return false, err
	}
	return true, nil
}

func (uc *sweepUC) ExpireDue(ctx context.Context) (int, int, error) {
	now := uc.clock.Now()
	due, err := uc.subs.FindExpired(ctx, repository.NoTX, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list expired: %w", err)
	}

	expired, failed := 0, 0
	for _, s := range due {
		if err := ctx.Err(); err != nil {
			return expired, failed, err
		}
		ok, err := uc.expireOne(ctx, s)
		if err != nil {
			failed++
			uc.log.Error().Err(err).Str("subscription_id", s.ID).Str("user_id", s.UserID).Msg("expiry failed")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, failed, nil
}

func (uc *sweepUC) expireOne(ctx context.Context, s *model.Subscription) (bool, error) {
	now := uc.clock.Now().Truncate(time.Microsecond)
	var (
		fresh    *model.Subscription
		keepRole bool
	)
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := uc.subs.MarkExpired(ctx, tx, s.ID, now)
		if err != nil || !ok {
			return err
		}
		if fresh, err = uc.subs.FindByID(ctx, tx, s.ID); err != nil {
			return err
		}
		keepRole, err = uc.subs.HasOtherActiveWithRole(ctx, tx, fresh.UserID, fresh.GrantedRoleID, fresh.ID, now)
		return err
	})
	if err != nil || fresh == nil {
		// a failed commit leaves the row active for the next run
		return false, err
	}

	if err := uc.events.Publish(ctx, model.LifecycleEvent{
		Kind:         model.EventExpired,
		Subscription: *fresh,
		OccurredAt:   now,
		RevokeRole:   !keepRole && fresh.GrantedRoleID != "",
	}); err != nil {
		uc.release(ctx, "expiry", s.ID, func(ctx context.Context) (bool, error) {
			return uc.subs.ReleaseExpired(ctx, repository.NoTX, s.ID, now)
		})
		return false, err
	}
	return true, nil
}

// release undoes a committed claim whose event could not be queued. If the
// release fails too, the transition stands and its notification is lost.
func (uc *sweepUC) release(ctx context.Context, what, id string, undo func(ctx context.Context) (bool, error)) {
	ok, err := undo(context.WithoutCancel(ctx))
	switch {
	case err != nil:
		uc.log.Error().Err(err).Str("subscription_id", id).Str("claim", what).Msg("claim release failed; notification lost")
	case !ok:
		uc.log.Warn().Str("subscription_id", id).Str("claim", what).Msg("claim changed before release")
	}
}

func (uc *sweepUC) PruneTransactions(ctx context.Context) (int64, error) {
	cutoff := uc.clock.Now().Add(-uc.opts.TxRetention)
	n, err := uc.txns.DeleteOlderThan(ctx, repository.NoTX, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", err)
	}
	if n > 0 {
		uc.log.Info().Int64("count", n).Time("cutoff", cutoff).Msg("pruned stale transaction records")
	}
	return n, nil
}
