package repository

import (
	"context"
	"time"

	"subscription-ledger/internal/domain/model"
)

// SubscriptionRepository is the port for entitlement records.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindActiveByUserForUpdate returns the newest active entitlement of the user
	// that has not yet passed its expiry at now, locking it for the rest of tx.
	FindActiveByUserForUpdate(ctx context.Context, tx Tx, userID string, now time.Time) (*model.Subscription, error)
	FindActiveByUser(ctx context.Context, tx Tx, userID string, now time.Time) (*model.Subscription, error)

	// FindDueForWarning lists active, unwarned entitlements expiring in (from, to].
	FindDueForWarning(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Subscription, error)
	// FindExpired lists active entitlements whose expiry is before now.
	FindExpired(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)

	// MarkWarningSent flips warning_sent if it is still false and the expiry
	// still lies in (from, to]. A renewal that moved the expiry out of the
	// window makes the claim miss. It reports whether this call made the change.
	MarkWarningSent(ctx context.Context, tx Tx, id string, from, to, at time.Time) (bool, error)
	// MarkExpired moves an active entitlement whose expiry is before now to
	// expired. It reports whether this call made the change.
	MarkExpired(ctx context.Context, tx Tx, id string, now time.Time) (bool, error)

	// ReleaseWarning undoes the MarkWarningSent made at `at`, so the next sweep
	// can warn again.
	ReleaseWarning(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
	// ReleaseExpired undoes the MarkExpired made at `at`.
	ReleaseExpired(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)

	// HasOtherActiveWithRole reports whether the user holds another active,
	// unexpired entitlement granting roleID.
	HasOtherActiveWithRole(ctx context.Context, tx Tx, userID, roleID, excludeID string, now time.Time) (bool, error)
	CountActive(ctx context.Context, tx Tx, now time.Time) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
