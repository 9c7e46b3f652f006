package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/infra/api"
	pg "subscription-ledger/internal/infra/db/postgres"
	"subscription-ledger/internal/infra/logging"
	"subscription-ledger/internal/usecase"
)

func main() {
	username := flag.String("user", "", "username of the user to create or credit")
	tgID := flag.Int64("telegram-id", 0, "telegram id of the user")
	balance := flag.String("balance", "0", "points to set (or add with -add)")
	add := flag.Bool("add", false, "add -balance to the current balance instead of replacing it")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed API token")

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *username == "" || *tgID <= 0 {
		log.Fatalf("-user and -telegram-id are required")
	}
	amount, err := decimal.NewFromString(*balance)
	if err != nil {
		log.Fatalf("invalid -balance %q: %v", *balance, err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	balUC := usecase.NewBalanceUseCase(pg.NewPostgresUserRepo(pool), pg.NewTxManager(pool), logger)

	u, err := model.NewUser("", *tgID, *username, decimal.Zero)
	if err != nil {
		log.Fatalf("user: %v", err)
	}
	u, err = balUC.EnsureUser(ctx, u)
	if err != nil {
		log.Fatalf("ensure user: %v", err)
	}

	var now decimal.Decimal
	if *add {
		now, err = balUC.Add(ctx, u.ID, amount)
	} else {
		now, err = balUC.Set(ctx, u.ID, amount)
	}
	if err != nil {
		log.Fatalf("update balance: %v", err)
	}
	fmt.Printf("user %s (telegram_id=%d) balance=%s\n", u.ID, u.TelegramID, now.String())

	if cfg.API.JWTSecret != "" {
		tok, err := api.MintToken(cfg.API.JWTSecret, u.ID, *tokenTTL)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Printf("bearer token (valid %s):\n%s\n", tokenTTL.String(), tok)
	}
}
