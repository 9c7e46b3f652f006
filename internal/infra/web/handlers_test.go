//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/infra/clock"
	"subscription-ledger/internal/infra/db/memory"
	"subscription-ledger/internal/infra/web"
	"subscription-ledger/internal/usecase"
)

const apiKey = "admin-key"

type reloadCatalog struct {
	forced int
	err    error
}

func (c *reloadCatalog) GetPlans(ctx context.Context, force bool) ([]*model.Plan, error) {
	if force {
		c.forced++
	}
	if c.err != nil {
		return nil, c.err
	}
	return []*model.Plan{{ID: "weekly"}, {ID: "monthly"}}, nil
}

func (c *reloadCatalog) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	return nil, errors.New("unused")
}

func newRouter(t *testing.T, key string) (http.Handler, *memory.Store, *reloadCatalog) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := memory.NewStore()
	clk := clock.NewManual(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	u, err := model.NewUser("u1", 1001, "alice", decimal.NewFromInt(40))
	require.NoError(t, err)
	require.NoError(t, store.Users().Save(ctx, nil, u))
	plan := &model.Plan{ID: "monthly", Price: decimal.NewFromInt(10), DurationDays: 30, GrantedRoleID: "-1"}
	sub, err := model.NewSubscription("u1", plan, plan.Price, clk.Now())
	require.NoError(t, err)
	require.NoError(t, store.Subscriptions().Save(ctx, nil, sub))

	cat := &reloadCatalog{}
	srv := web.NewServer(
		usecase.NewBalanceUseCase(store.Users(), store, &logger),
		usecase.NewSubscriptionUseCase(store.Subscriptions(), clk),
		cat, key, &logger)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return r, store, cat
}

func call(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth(t *testing.T) {
	h, _, _ := newRouter(t, apiKey)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/admin/v1/stats", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodGet, "/admin/v1/stats", "wrong", "").Code)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/admin/v1/stats", apiKey, "").Code)

	unset, _, _ := newRouter(t, "")
	assert.Equal(t, http.StatusForbidden, call(unset, http.MethodGet, "/admin/v1/stats", "anything", "").Code)
}

func TestAdminStats(t *testing.T) {
	h, _, _ := newRouter(t, apiKey)
	rec := call(h, http.MethodGet, "/admin/v1/stats", apiKey, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Active   int            `json:"active"`
		ByStatus map[string]int `json:"by_status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Active)
	assert.Equal(t, 1, body.ByStatus["active"])
}

func TestAdminUser(t *testing.T) {
	h, _, _ := newRouter(t, apiKey)

	rec := call(h, http.MethodGet, "/admin/v1/users/u1", apiKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Balance      string `json:"balance"`
		Subscription *struct {
			PlanID string `json:"plan_id"`
		} `json:"subscription"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "40", body.Balance)
	require.NotNil(t, body.Subscription)
	assert.Equal(t, "monthly", body.Subscription.PlanID)

	assert.Equal(t, http.StatusNotFound, call(h, http.MethodGet, "/admin/v1/users/ghost", apiKey, "").Code)
}

func TestAdminBalanceOps(t *testing.T) {
	h, store, _ := newRouter(t, apiKey)

	balance := func() string {
		u, err := store.Users().FindByID(context.Background(), nil, "u1")
		require.NoError(t, err)
		return u.Balance.String()
	}

	rec := call(h, http.MethodPost, "/admin/v1/users/u1/balance/credit", apiKey, `{"amount":"10.5","reason":"event prize"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "50.5", balance())

	rec = call(h, http.MethodPost, "/admin/v1/users/u1/balance/debit", apiKey, `{"amount":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", balance())

	rec = call(h, http.MethodPut, "/admin/v1/users/u1/balance", apiKey, `{"amount":"250"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "250", balance())

	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodPut, "/admin/v1/users/u1/balance", apiKey, `{"amount":"-1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodPut, "/admin/v1/users/u1/balance", apiKey, `nope`).Code)
	assert.Equal(t, http.StatusNotFound, call(h, http.MethodPost, "/admin/v1/users/ghost/balance/credit", apiKey, `{"amount":1}`).Code)
	assert.Equal(t, "250", balance())
}

func TestAdminCatalogReload(t *testing.T) {
	h, _, cat := newRouter(t, apiKey)
	rec := call(h, http.MethodPost, "/admin/v1/catalog/reload", apiKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cat.forced)
	assert.JSONEq(t, `{"plans":["weekly","monthly"]}`, rec.Body.String())

	cat.err = errors.New("yaml: bad indent")
	assert.Equal(t, http.StatusInternalServerError, call(h, http.MethodPost, "/admin/v1/catalog/reload", apiKey, "").Code)
}
