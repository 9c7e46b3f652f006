package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"subscription-ledger/internal/domain/model"
)

// NotificationSink is the outbound chat platform. Every call is best-effort from
// the ledger's point of view: failures are reported, never rolled back.
type NotificationSink interface {
	// NotifyPurchased reports a purchase or renewal; paid is the amount this
	// purchase charged, not the lineage total.
	NotifyPurchased(ctx context.Context, user *model.User, plan *model.Plan, sub *model.Subscription, paid decimal.Decimal, isRenewal bool) error
	NotifyExpired(ctx context.Context, sub *model.Subscription) error
	NotifyExpiryWarning(ctx context.Context, sub *model.Subscription) error
	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	// RefreshPresence hints that the active-entitlement count changed.
	RefreshPresence(ctx context.Context) error
}

// EventPublisher hands committed lifecycle events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.LifecycleEvent) error
}
