//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/usecase"
)

func TestBalanceUseCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addUser(t, "u1", 1001, "100")
	uc := usecase.NewBalanceUseCase(f.users, f.store, newTestLogger())

	b, err := uc.Add(ctx, "u1", dec("25.5"))
	require.NoError(t, err)
	assert.True(t, dec("125.5").Equal(b))

	b, err = uc.Subtract(ctx, "u1", dec("200"))
	require.NoError(t, err)
	assert.True(t, b.IsZero(), "subtract clamps at zero")

	b, err = uc.Set(ctx, "u1", dec("42"))
	require.NoError(t, err)
	assert.True(t, dec("42").Equal(b))

	got, err := uc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("42").Equal(got))

	_, err = uc.Set(ctx, "u1", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = uc.Add(ctx, "u1", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = uc.Add(ctx, "ghost", dec("1"))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = uc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestBalanceUseCase_EnsureUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	uc := usecase.NewBalanceUseCase(f.users, f.store, newTestLogger())

	u, err := model.NewUser("", 77, "alice", dec("10"))
	require.NoError(t, err)
	created, err := uc.EnsureUser(ctx, u)
	require.NoError(t, err)

	again, err := model.NewUser("", 77, "alice", dec("999"))
	require.NoError(t, err)
	existing, err := uc.EnsureUser(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, created.ID, existing.ID)
	assert.True(t, dec("10").Equal(existing.Balance))
}

func TestSubscriptionUseCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addUser(t, "u1", 1, "0")
	f.addUser(t, "u2", 2, "0")
	s := f.addSubscription(t, "u1", "monthly", t0.Add(48*time.Hour))
	f.addSubscription(t, "u2", "monthly", t0.Add(-time.Hour))
	uc := usecase.NewSubscriptionUseCase(f.subs, f.clock)

	got, err := uc.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = uc.GetActive(ctx, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := uc.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byStatus, err := uc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byStatus[model.SubscriptionStatusActive])
}
