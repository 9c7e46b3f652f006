package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeRenewal  TransactionType = "renewal"
)

// Transaction is the idempotency and audit record of one balance-affecting operation.
// It is pruned shortly after its lifecycle event is dispatched; the permanent history
// lives in the subscription's cumulative fields.
type Transaction struct {
	ID             string
	IdempotencyKey string
	UserID         string
	SubscriptionID string
	PlanID         string
	Amount         decimal.Decimal
	FinalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	Type           TransactionType
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	CreatedAt      time.Time
}
