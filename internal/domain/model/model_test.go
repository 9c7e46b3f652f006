package model

import (
	"errors"
	"testing"
	"time"

	"subscription-ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyDiscount(t *testing.T) {
	t.Run("percent discount multiplies", func(t *testing.T) {
		final, off := ApplyDiscount(dec("100"), &Discount{Type: DiscountPercent, Value: dec("25")})
		assert.True(t, final.Equal(dec("75")), final.String())
		assert.True(t, off.Equal(dec("25")), off.String())
	})

	t.Run("fixed discount larger than price is floored at zero", func(t *testing.T) {
		final, off := ApplyDiscount(dec("100"), &Discount{Type: DiscountFixed, Value: dec("150")})
		assert.True(t, final.IsZero(), final.String())
		assert.True(t, off.Equal(dec("100")), off.String())
	})

	t.Run("fixed discount subtracts", func(t *testing.T) {
		final, off := ApplyDiscount(dec("100"), &Discount{Type: DiscountFixed, Value: dec("30.5")})
		assert.True(t, final.Equal(dec("69.5")))
		assert.True(t, off.Equal(dec("30.5")))
	})

	t.Run("no discount", func(t *testing.T) {
		final, off := ApplyDiscount(dec("42"), nil)
		assert.True(t, final.Equal(dec("42")))
		assert.True(t, off.IsZero())
	})
}

func TestPlanValidate(t *testing.T) {
	ok := &Plan{ID: "p1", Title: "Monthly", Price: dec("200"), DurationDays: 30, GrantedRoleID: "-100"}
	require.NoError(t, ok.Validate())

	bad := []*Plan{
		nil,
		{ID: "p", Title: "", Price: dec("1"), DurationDays: 1},
		{ID: "p", Title: "x", Price: dec("-1"), DurationDays: 1},
		{ID: "p", Title: "x", Price: dec("1"), DurationDays: 0},
		{ID: "p", Title: "x", Price: dec("1"), DurationDays: 1, Discount: &Discount{Type: "bogus", Value: dec("1")}},
		{ID: "p", Title: "x", Price: dec("1"), DurationDays: 1, Discount: &Discount{Type: DiscountPercent, Value: dec("101")}},
	}
	for i, p := range bad {
		assert.True(t, errors.Is(p.Validate(), domain.ErrInvalidArgument), "case %d", i)
	}
}

func TestSubscriptionRenewExtendsFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	monthly := &Plan{ID: "monthly", Title: "Monthly", Price: dec("200"), DurationDays: 30, GrantedRoleID: "r1"}
	sub, err := NewSubscription("u1", monthly, dec("200"), now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), sub.ExpiresAt)

	sub.WarningSent = true
	later := now.Add(20 * 24 * time.Hour)
	biweekly := &Plan{ID: "biweekly", Title: "Two weeks", Price: dec("100"), DurationDays: 15, GrantedRoleID: "r2"}
	require.NoError(t, sub.Renew(biweekly, dec("100"), later))

	assert.Equal(t, now.Add(45*24*time.Hour), sub.ExpiresAt)
	assert.Equal(t, 1, sub.RenewalCount)
	assert.True(t, sub.TotalPaid.Equal(dec("300")))
	assert.True(t, sub.PaidPrice.Equal(dec("200")))
	assert.Equal(t, "biweekly", sub.PlanID)
	assert.Equal(t, "r2", sub.GrantedRoleID)
	assert.False(t, sub.WarningSent)
	require.NotNil(t, sub.LastRenewedAt)
	assert.Equal(t, later, *sub.LastRenewedAt)
}

func TestSubscriptionIsActiveAt(t *testing.T) {
	now := time.Now()
	s := &Subscription{Status: SubscriptionStatusActive, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.IsActiveAt(now))
	assert.False(t, s.IsActiveAt(now.Add(2*time.Hour)))
	assert.Zero(t, s.Remaining(now.Add(2*time.Hour)))

	s.Status = SubscriptionStatusExpired
	assert.False(t, s.IsActiveAt(now))
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("", 42, "alice", dec("500"))
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.True(t, u.CanAfford(dec("500")))
	assert.False(t, u.CanAfford(dec("500.01")))

	_, err = NewUser("", 0, "alice", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = NewUser("", 1, "alice", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInsufficientBalanceError(t *testing.T) {
	var err error = &domain.InsufficientBalanceError{Balance: dec("50"), Required: dec("75")}
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	var ibe *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Shortfall().Equal(dec("25")))
}
