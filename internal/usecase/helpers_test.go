//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/infra/clock"
	"subscription-ledger/internal/infra/db/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- Static catalog

type staticCatalog struct{ plans []*model.Plan }

func (c *staticCatalog) GetPlans(ctx context.Context, forceReload bool) ([]*model.Plan, error) {
	return c.plans, nil
}

func (c *staticCatalog) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	for _, p := range c.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPlanNotFound
}

func testCatalog() *staticCatalog {
	return &staticCatalog{plans: []*model.Plan{
		{ID: "monthly", Title: "Monthly", Price: dec("200"), DurationDays: 30, GrantedRoleID: "role-vip"},
		{ID: "weekly", Title: "Weekly", Price: dec("100"), DurationDays: 7, GrantedRoleID: "role-vip"},
		{ID: "fortnight", Title: "Fortnight", Price: dec("100"), DurationDays: 15, GrantedRoleID: "role-vip"},
		{ID: "gold", Title: "Gold", Price: dec("200"), DurationDays: 30, GrantedRoleID: "role-gold",
			Discount: &model.Discount{Type: model.DiscountPercent, Value: dec("25")}},
	}}
}

// --- Recording publisher

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
	// failNext makes the next n Publish calls fail.
	failNext int
}

var errPublish = errors.New("outbox full")

func (p *recordingPublisher) Publish(ctx context.Context, evt model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errPublish
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []model.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.LifecycleEvent(nil), p.events...)
}

func (p *recordingPublisher) Kinds() []model.EventKind {
	var out []model.EventKind
	for _, e := range p.Events() {
		out = append(out, e.Kind)
	}
	return out
}

// --- Fixture

type fixture struct {
	store   *memory.Store
	users   *memory.UserRepo
	subs    *memory.SubscriptionRepo
	txns    *memory.TransactionRepo
	catalog *staticCatalog
	pub     *recordingPublisher
	clock   *clock.Manual
}

func newFixture() *fixture {
	st := memory.NewStore()
	return &fixture{
		store:   st,
		users:   st.Users(),
		subs:    st.Subscriptions(),
		txns:    st.Transactions(),
		catalog: testCatalog(),
		pub:     &recordingPublisher{},
		clock:   clock.NewManual(t0),
	}
}

func (f *fixture) addUser(t *testing.T, id string, tgID int64, balance string) *model.User {
	t.Helper()
	u, err := model.NewUser(id, tgID, "user-"+id, dec(balance))
	require.NoError(t, err)
	require.NoError(t, f.users.Save(context.Background(), repository.NoTX, u))
	return u
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), repository.NoTX, id)
	require.NoError(t, err)
	return u.Balance
}

// addSubscription stores an active entitlement expiring at expiresAt.
func (f *fixture) addSubscription(t *testing.T, userID, planID string, expiresAt time.Time) *model.Subscription {
	t.Helper()
	plan, err := f.catalog.FindByID(context.Background(), planID)
	require.NoError(t, err)
	s, err := model.NewSubscription(userID, plan, plan.Price, expiresAt.Add(-time.Duration(plan.DurationDays)*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.subs.Save(context.Background(), repository.NoTX, s))
	return s
}
