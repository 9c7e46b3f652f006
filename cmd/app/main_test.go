package main

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
)

func TestOpenStorage_DevWithoutDatabaseUsesMemory(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Runtime.Dev = true
	logger := zerolog.Nop()
	var g errgroup.Group

	st, err := openStorage(ctx, &g, cfg, &logger)
	require.NoError(t, err)
	defer st.close()

	require.NoError(t, st.ready(ctx))
	u, err := model.NewUser("u1", 42, "buyer", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, st.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return st.users.Save(ctx, tx, u)
	}))
	got, err := st.users.FindByID(ctx, repository.NoTX, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TelegramID)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Balance))
	require.NoError(t, g.Wait())
}
