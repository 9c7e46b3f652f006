package model

import (
	"time"

	"subscription-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

const day = 24 * time.Hour

// Subscription is one entitlement lineage: created on the first purchase and
// mutated in place by every renewal. It only leaves the active state through a sweep.
type Subscription struct {
	ID            string
	UserID        string
	PlanID        string
	GrantedRoleID string
	Status        SubscriptionStatus

	CreatedAt     time.Time
	StartedAt     time.Time
	ExpiresAt     time.Time
	UpdatedAt     time.Time
	ExpiredAt     *time.Time
	LastRenewedAt *time.Time

	DurationDays  int
	OriginalPrice decimal.Decimal
	PaidPrice     decimal.Decimal
	TotalPaid     decimal.Decimal
	RenewalCount  int

	WarningSent   bool
	WarningSentAt *time.Time
}

// NewSubscription starts a fresh lineage for userID on plan, expiring DurationDays after now.
func NewSubscription(userID string, plan *Plan, paid decimal.Decimal, now time.Time) (*Subscription, error) {
	if userID == "" || plan.IsZero() || plan.DurationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:            uuid.NewString(),
		UserID:        userID,
		PlanID:        plan.ID,
		GrantedRoleID: plan.GrantedRoleID,
		Status:        SubscriptionStatusActive,
		CreatedAt:     now,
		StartedAt:     now,
		ExpiresAt:     now.Add(time.Duration(plan.DurationDays) * day),
		UpdatedAt:     now,
		DurationDays:  plan.DurationDays,
		OriginalPrice: plan.Price,
		PaidPrice:     paid,
		TotalPaid:     paid,
	}, nil
}

// Renew extends the lineage under plan's terms. Time is added to the current
// expiry, so renewing early keeps the remaining days.
func (s *Subscription) Renew(plan *Plan, paid decimal.Decimal, now time.Time) error {
	if plan.IsZero() || plan.DurationDays <= 0 {
		return domain.ErrInvalidArgument
	}
	s.ExpiresAt = s.ExpiresAt.Add(time.Duration(plan.DurationDays) * day)
	s.PlanID = plan.ID
	s.GrantedRoleID = plan.GrantedRoleID
	s.DurationDays = plan.DurationDays
	s.RenewalCount++
	s.TotalPaid = s.TotalPaid.Add(paid)
	s.LastRenewedAt = &now
	s.UpdatedAt = now
	// the expiry moved, a new warning is due later
	s.WarningSent = false
	s.WarningSentAt = nil
	return nil
}

// IsActiveAt reports whether the entitlement is active and not yet past its expiry at t.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.ExpiresAt.After(t)
}

// Remaining is the time left until expiry, zero once expired.
func (s *Subscription) Remaining(now time.Time) time.Duration {
	if !s.IsActiveAt(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
