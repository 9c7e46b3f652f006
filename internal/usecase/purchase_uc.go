package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

// PurchaseResult is what a committed purchase or renewal produced.
type PurchaseResult struct {
	FinalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	Subscription   *model.Subscription
	Transaction    *model.Transaction
	IsRenewal      bool
}

type PurchaseUseCase interface {
	// Purchase debits the plan's final price and creates or extends the user's
	// entitlement as one atomic unit. An empty idempotencyKey gets a fresh one.
	//
	// Errors: domain.ErrPlanNotFound, domain.ErrUserNotFound,
	// *domain.InsufficientBalanceError, domain.ErrDuplicateTransaction,
	// domain.ErrTransientStore.
	Purchase(ctx context.Context, userID, planID, idempotencyKey string) (*PurchaseResult, error)
}

type purchaseUC struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	txns    repository.TransactionRepository
	catalog repository.PlanCatalog
	tm      repository.TransactionManager
	events  adapter.EventPublisher
	clock   adapter.Clock
	log     *zerolog.Logger
}

func NewPurchaseUseCase(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	txns repository.TransactionRepository,
	catalog repository.PlanCatalog,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	clock adapter.Clock,
	logger *zerolog.Logger,
) *purchaseUC {
	l := logger.With().Str("component", "PurchaseUC").Logger()
	return &purchaseUC{
		users:   users,
		subs:    subs,
		txns:    txns,
		catalog: catalog,
		tm:      tm,
		events:  events,
		clock:   clock,
		log:     &l,
	}
}

func (uc *purchaseUC) Purchase(ctx context.Context, userID, planID, idempotencyKey string) (*PurchaseResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(planID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	plan, err := uc.catalog.FindByID(ctx, planID)
	if err != nil {
		return nil, classify("find plan", err)
	}
	finalPrice, discount := plan.FinalPrice()

	// Cheap rejection of a retry whose original already committed; the
	// authoritative check runs again under the user lock.
	if dup, err := uc.txns.ExistsByIdempotencyKey(ctx, repository.NoTX, key); err != nil {
		return nil, classify("check idempotency key", err)
	} else if dup {
		return nil, domain.ErrDuplicateTransaction
	}

	var (
		res      *PurchaseResult
		user     *model.User
		prevRole string
	)
	err = uc.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		// Same-user purchases queue up here; the lock is held until commit.
		u, err := uc.users.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		user = u

		dup, err := uc.txns.ExistsByIdempotencyKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrDuplicateTransaction
		}

		if !u.CanAfford(finalPrice) {
			return &domain.InsufficientBalanceError{Balance: u.Balance, Required: finalPrice}
		}

		now := uc.clock.Now()
		sub, err := uc.subs.FindActiveByUserForUpdate(ctx, tx, u.ID, now)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		renewal := sub != nil
		if renewal {
			prevRole = sub.GrantedRoleID
			if err := sub.Renew(plan, finalPrice, now); err != nil {
				return err
			}
		} else {
			if sub, err = model.NewSubscription(u.ID, plan, finalPrice, now); err != nil {
				return err
			}
		}
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		after, err := uc.users.SubtractBalance(ctx, tx, u.ID, finalPrice)
		if err != nil {
			return err
		}

		txType := model.TransactionTypePurchase
		if renewal {
			txType = model.TransactionTypeRenewal
		}
		rec := &model.Transaction{
			ID:             ulid.Make().String(),
			IdempotencyKey: key,
			UserID:         u.ID,
			SubscriptionID: sub.ID,
			PlanID:         plan.ID,
			Amount:         plan.Price,
			FinalPrice:     finalPrice,
			DiscountAmount: discount,
			Type:           txType,
			BalanceBefore:  u.Balance,
			BalanceAfter:   after,
			CreatedAt:      now,
		}
		if err := uc.txns.Save(ctx, tx, rec); err != nil {
			return err
		}
		user.Balance = after

		res = &PurchaseResult{
			FinalPrice:     finalPrice,
			DiscountAmount: discount,
			Subscription:   sub,
			Transaction:    rec,
			IsRenewal:      renewal,
		}
		return nil
	})
	if err != nil {
		return nil, classify("purchase", err)
	}

	uc.log.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("subscription_id", res.Subscription.ID).
		Str("price", finalPrice.String()).
		Bool("renewal", res.IsRenewal).
		Time("expires_at", res.Subscription.ExpiresAt).
		Msg("purchase committed")

	uc.publishPurchase(ctx, user, plan, res, key, prevRole)
	return res, nil
}

// publishPurchase hands the committed change to the outbox. A failure here never
// undoes the purchase.
func (uc *purchaseUC) publishPurchase(ctx context.Context, user *model.User, plan *model.Plan, res *PurchaseResult, key, prevRole string) {
	kind := model.EventPurchased
	if res.IsRenewal {
		kind = model.EventRenewed
	}
	if prevRole == res.Subscription.GrantedRoleID {
		prevRole = ""
	}
	evt := model.LifecycleEvent{
		Kind:           kind,
		Subscription:   *res.Subscription,
		OccurredAt:     res.Transaction.CreatedAt,
		User:           user,
		Plan:           plan,
		IdempotencyKey: key,
		Paid:           res.FinalPrice,
		PreviousRoleID: prevRole,
	}
	// detached so a client disconnect after commit does not drop the event
	if err := uc.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		uc.log.Error().Err(err).
			Str("subscription_id", res.Subscription.ID).
			Str("kind", string(kind)).
			Msg("lifecycle event not queued")
	}
}

// classify keeps the ledger's typed errors and folds everything else into
// ErrTransientStore.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrPlanNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrDuplicateTransaction),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrTransientStore):
		return err
	default:
		return domain.StoreError(op, err)
	}
}
