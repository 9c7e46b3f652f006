package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// Effect names, also used as metric labels.
const (
	EffectGrantRole   = "grant_role"
	EffectRevokeRole  = "revoke_role"
	EffectNotify      = "notify"
	EffectPresence    = "presence"
	EffectPruneRecord = "prune_record"
)

// EffectError reports which side effects of an event failed after retries.
type EffectError struct {
	Kind    model.EventKind
	Effects []string
	Err     error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("%s event: effects %v failed: %v", e.Kind, e.Effects, e.Err)
}

func (e *EffectError) Unwrap() []error { return []error{domain.ErrNotificationFailed, e.Err} }

// NotificationUseCase applies the external side effects of committed lifecycle
// events. Each effect is retried on its own and a failure never reaches the
// ledger.
type NotificationUseCase interface {
	Handle(ctx context.Context, evt model.LifecycleEvent) error
}

type NotificationOptions struct {
	CallTimeout time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// RecordGrace is how long a transaction record outlives its dispatched event.
	RecordGrace time.Duration
}

type notificationUC struct {
	sink  adapter.NotificationSink
	subs  repository.SubscriptionRepository
	txns  repository.TransactionRepository
	clock adapter.Clock
	opts  NotificationOptions
	log   *zerolog.Logger
}

func NewNotificationUseCase(
	sink adapter.NotificationSink,
	subs repository.SubscriptionRepository,
	txns repository.TransactionRepository,
	clock adapter.Clock,
	opts NotificationOptions,
	logger *zerolog.Logger,
) *notificationUC {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.RecordGrace <= 0 {
		opts.RecordGrace = 5 * time.Second
	}
	l := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{sink: sink, subs: subs, txns: txns, clock: clock, opts: opts, log: &l}
}

func (uc *notificationUC) Handle(ctx context.Context, evt model.LifecycleEvent) error {
	var f failures
	sub := evt.Subscription

	switch evt.Kind {
	case model.EventPurchased, model.EventRenewed:
		if evt.User == nil || evt.Plan == nil {
			return fmt.Errorf("%s event without user or plan: %w", evt.Kind, domain.ErrInvalidArgument)
		}
		if sub.GrantedRoleID != "" {
			f.add(EffectGrantRole, uc.attempt(ctx, func(ctx context.Context) error {
				return uc.sink.GrantRole(ctx, sub.UserID, sub.GrantedRoleID)
			}))
		}
		if evt.PreviousRoleID != "" {
			f.add(EffectRevokeRole, uc.revokeIfUnused(ctx, sub, evt.PreviousRoleID))
		}
		f.add(EffectNotify, uc.attempt(ctx, func(ctx context.Context) error {
			return uc.sink.NotifyPurchased(ctx, evt.User, evt.Plan, &sub, evt.Paid, evt.IsRenewal())
		}))
		f.add(EffectPresence, uc.attempt(ctx, uc.sink.RefreshPresence))
		uc.scheduleRecordPrune(evt.IdempotencyKey)

	case model.EventWarning:
		f.add(EffectNotify, uc.attempt(ctx, func(ctx context.Context) error {
			return uc.sink.NotifyExpiryWarning(ctx, &sub)
		}))

	case model.EventExpired:
		if evt.RevokeRole {
			f.add(EffectRevokeRole, uc.attempt(ctx, func(ctx context.Context) error {
				return uc.sink.RevokeRole(ctx, sub.UserID, sub.GrantedRoleID)
			}))
		}
		f.add(EffectNotify, uc.attempt(ctx, func(ctx context.Context) error {
			return uc.sink.NotifyExpired(ctx, &sub)
		}))
		f.add(EffectPresence, uc.attempt(ctx, uc.sink.RefreshPresence))

	default:
		return fmt.Errorf("unknown event kind %q: %w", evt.Kind, domain.ErrInvalidArgument)
	}

	if len(f.effects) == 0 {
		return nil
	}
	for i, name := range f.effects {
		uc.log.Warn().Err(f.errs[i]).
			Str("effect", name).
			Str("kind", string(evt.Kind)).
			Str("subscription_id", sub.ID).
			Str("user_id", sub.UserID).
			Msg("side effect failed; ledger state stands")
	}
	return &EffectError{Kind: evt.Kind, Effects: f.effects, Err: errors.Join(f.errs...)}
}

// revokeIfUnused drops a role replaced by a plan switch unless another live
// entitlement still grants it.
func (uc *notificationUC) revokeIfUnused(ctx context.Context, sub model.Subscription, roleID string) error {
	inUse, err := uc.subs.HasOtherActiveWithRole(ctx, repository.NoTX, sub.UserID, roleID, sub.ID, uc.clock.Now())
	if err != nil {
		return err
	}
	if inUse {
		return nil
	}
	return uc.attempt(ctx, func(ctx context.Context) error {
		return uc.sink.RevokeRole(ctx, sub.UserID, roleID)
	})
}

// attempt runs fn with a bounded timeout per call and a bounded number of tries.
func (uc *notificationUC) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = uc.opts.RetryDelay
	b.MaxInterval = 10 * uc.opts.RetryDelay
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, uc.opts.CallTimeout)
		defer cancel()
		if err := fn(callCtx); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrNotFound) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(uc.opts.MaxAttempts)))
	return err
}

// scheduleRecordPrune deletes the transaction record once the grace delay has
// passed. The sweep's retention prune catches records missed here.
func (uc *notificationUC) scheduleRecordPrune(key string) {
	if key == "" {
		return
	}
	uc.clock.AfterFunc(uc.opts.RecordGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), uc.opts.CallTimeout)
		defer cancel()
		if err := uc.txns.DeleteByIdempotencyKey(ctx, repository.NoTX, key); err != nil {
			uc.log.Warn().Err(err).Str("idempotency_key", key).Msg("transaction record not pruned")
		}
	})
}

type failures struct {
	effects []string
	errs    []error
}

func (f *failures) add(effect string, err error) {
	if err == nil {
		return
	}
	f.effects = append(f.effects, effect)
	f.errs = append(f.errs, err)
}
