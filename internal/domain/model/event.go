package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventPurchased EventKind = "purchased"
	EventRenewed   EventKind = "renewed"
	EventWarning   EventKind = "warning"
	EventExpired   EventKind = "expired"
)

// LifecycleEvent is published after a ledger state change has been committed.
// Consumers apply external side effects; they never touch balances.
type LifecycleEvent struct {
	Kind         EventKind
	Subscription Subscription
	OccurredAt   time.Time

	// Set on purchase/renewal.
	User           *User
	Plan           *Plan
	IdempotencyKey string
	// Paid is what this purchase charged, after discount.
	Paid decimal.Decimal
	// PreviousRoleID is the role held before a renewal switched plans; empty when unchanged.
	PreviousRoleID string

	// Set on expiry: false when another active entitlement still grants the role.
	RevokeRole bool
}

func (e LifecycleEvent) IsRenewal() bool { return e.Kind == EventRenewed }
