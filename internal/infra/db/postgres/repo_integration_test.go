//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/infra/clock"
	"subscription-ledger/internal/usecase"
)

type repos struct {
	users *PostgresUserRepo
	subs  *PostgresSubscriptionRepo
	txns  *PostgresTransactionRepo
	tm    *TxManager
}

func newRepos(t *testing.T) repos {
	t.Helper()
	cleanup(t)
	return repos{
		users: NewPostgresUserRepo(testPool),
		subs:  NewPostgresSubscriptionRepo(testPool),
		txns:  NewPostgresTransactionRepo(testPool),
		tm:    NewTxManager(testPool),
	}
}

func mustUser(t *testing.T, r repos, id string, tgID int64, balance string) *model.User {
	t.Helper()
	u, err := model.NewUser(id, tgID, "user-"+id, decimal.RequireFromString(balance))
	require.NoError(t, err)
	require.NoError(t, r.users.Save(context.Background(), nil, u))
	return u
}

func TestUserRepo_BalanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "10.25")

	u, err := r.users.FindByTelegramID(ctx, nil, 1001)
	require.NoError(t, err)
	assert.Equal(t, "10.25", u.Balance.String())

	b, err := r.users.AddBalance(ctx, nil, "u1", decimal.RequireFromString("0.75"))
	require.NoError(t, err)
	assert.Equal(t, "11", b.String())

	b, err = r.users.SubtractBalance(ctx, nil, "u1", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	_, err = r.users.SetBalance(ctx, nil, "ghost", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Save does not reset a balance
	u.Username = "renamed"
	u.Balance = decimal.NewFromInt(999)
	require.NoError(t, r.users.Save(ctx, nil, u))
	got, err := r.users.FindByID(ctx, nil, "u1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
	assert.True(t, got.Balance.IsZero())

	dup, _ := model.NewUser("u2", 1001, "twin", decimal.Zero)
	assert.ErrorIs(t, r.users.Save(ctx, nil, dup), domain.ErrAlreadyExists)
}

func TestUserRepo_ForUpdateNeedsTransaction(t *testing.T) {
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "1")
	_, err := r.users.FindByIDForUpdate(context.Background(), nil, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidExecContext)
}

func TestSubscriptionRepo_ConditionalTransitions(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "0")
	now := time.Now().UTC().Truncate(time.Microsecond)
	plan := &model.Plan{ID: "monthly", Title: "Monthly", Price: decimal.NewFromInt(200), DurationDays: 30, GrantedRoleID: "role"}

	s, err := model.NewSubscription("u1", plan, plan.Price, now.Add(-30*24*time.Hour+time.Hour))
	require.NoError(t, err)
	require.NoError(t, r.subs.Save(ctx, nil, s))

	due, err := r.subs.FindDueForWarning(ctx, nil, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(due[0].TotalPaid))

	ok, err := r.subs.MarkWarningSent(ctx, nil, s.ID, now, now.Add(30*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, ok, "expiry outside the window")
	ok, err = r.subs.MarkWarningSent(ctx, nil, s.ID, now, now.Add(24*time.Hour), now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.subs.MarkWarningSent(ctx, nil, s.ID, now, now.Add(24*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim loses")

	ok, err = r.subs.ReleaseWarning(ctx, nil, s.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.subs.MarkWarningSent(ctx, nil, s.ID, now, now.Add(24*time.Hour), now)
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken again")

	ok, err = r.subs.MarkExpired(ctx, nil, s.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "not expired yet")

	later := now.Add(2 * time.Hour)
	expired, err := r.subs.FindExpired(ctx, nil, later)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	ok, err = r.subs.MarkExpired(ctx, nil, s.ID, later)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.subs.ReleaseExpired(ctx, nil, s.ID, later)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.subs.MarkExpired(ctx, nil, s.ID, later)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.subs.FindByID(ctx, nil, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusExpired, got.Status)
	require.NotNil(t, got.ExpiredAt)
	assert.True(t, got.WarningSent)

	counts, err := r.subs.CountByStatus(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.SubscriptionStatusExpired])

	_, err = r.subs.FindActiveByUser(ctx, nil, "u1", later)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	orphan, _ := model.NewSubscription("ghost", plan, plan.Price, now)
	assert.ErrorIs(t, r.subs.Save(ctx, nil, orphan), domain.ErrUserNotFound)
}

func TestTransactionRepo_UniqueKeyAndPrune(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "0")
	old := time.Now().UTC().Add(-2 * time.Hour)

	rec := &model.Transaction{ID: "t1", IdempotencyKey: "k1", UserID: "u1", PlanID: "monthly",
		Amount: decimal.NewFromInt(200), FinalPrice: decimal.NewFromInt(150), DiscountAmount: decimal.NewFromInt(50),
		Type: model.TransactionTypePurchase, BalanceBefore: decimal.NewFromInt(500), BalanceAfter: decimal.NewFromInt(350), CreatedAt: old}
	require.NoError(t, r.txns.Save(ctx, nil, rec))

	again := *rec
	again.ID = "t2"
	assert.ErrorIs(t, r.txns.Save(ctx, nil, &again), domain.ErrDuplicateTransaction)

	got, err := r.txns.FindByIdempotencyKey(ctx, nil, "k1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(350).Equal(got.BalanceAfter))
	assert.Empty(t, got.SubscriptionID)

	n, err := r.txns.DeleteOlderThan(ctx, nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTxManager_RollsBack(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "100")

	boom := errors.New("boom")
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := r.users.SubtractBalance(ctx, tx, "u1", decimal.NewFromInt(60)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := r.users.FindByID(ctx, nil, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(u.Balance))
}

type oneplan struct{ p *model.Plan }

func (c oneplan) GetPlans(ctx context.Context, force bool) ([]*model.Plan, error) {
	return []*model.Plan{c.p}, nil
}
func (c oneplan) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	if id != c.p.ID {
		return nil, domain.ErrPlanNotFound
	}
	return c.p, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, evt model.LifecycleEvent) error { return nil }

// Same-user purchases serialise on the user row: with balance for two, exactly
// two of many concurrent attempts commit.
func TestPurchase_SerialisesSameUser(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	mustUser(t, r, "u1", 1001, "500")
	plan := &model.Plan{ID: "monthly", Title: "Monthly", Price: decimal.NewFromInt(200), DurationDays: 30, GrantedRoleID: "role"}
	logger := zerolog.New(io.Discard)
	uc := usecase.NewPurchaseUseCase(r.users, r.subs, r.txns, oneplan{plan}, r.tm, nopPublisher{}, clock.Real{}, &logger)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k-%d", i%4) // duplicate keys on purpose
			_, err := uc.Purchase(ctx, "u1", "monthly", key)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInsufficientBalance) && !errors.Is(err, domain.ErrDuplicateTransaction) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, success)
	u, err := r.users.FindByID(ctx, nil, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(u.Balance))

	s, err := r.subs.FindActiveByUser(ctx, nil, "u1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, s.RenewalCount)
}
