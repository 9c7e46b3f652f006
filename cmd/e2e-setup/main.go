package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/infra/catalog"
	"subscription-ledger/internal/infra/db/postgres"
	"subscription-ledger/internal/infra/logging"
	"subscription-ledger/internal/infra/redis"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing of purchases, the warning pass and recovery.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean Redis so no stale rate-limit counters or sweep locks remain.
	if cfg.Redis.URL != "" {
		log.Println("[1/4] Wiping Redis...")
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
	} else {
		log.Println("[1/4] Redis not configured, skipping")
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping all existing ledger data...")
	_, err = pool.Exec(ctx, `TRUNCATE users, subscriptions, transactions RESTART IDENTITY CASCADE;`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. The fixtures buy from the real catalog.
	log.Println("[3/4] Loading plan catalog...")
	plans, err := catalog.NewFileCatalog(cfg.Catalog.Path, logger).GetPlans(ctx, true)
	if err != nil || len(plans) == 0 {
		log.Fatalf("catalog %s: %v (need at least one plan)", cfg.Catalog.Path, err)
	}

	log.Println("[4/4] Seeding fixture users and subscriptions...")
	seedFixtures(ctx, pool, plans[0])

	log.Println("--- ✅ E2E Environment Setup Complete ---")
}

// seedFixtures creates one user per state the sweep cares about:
//
//	e2e-buyer   funded, no subscription
//	e2e-warn    active, expires within the warning window
//	e2e-overdue active but three days past expiry, as after downtime
func seedFixtures(ctx context.Context, pool *pgxpool.Pool, plan *model.Plan) {
	users := postgres.NewPostgresUserRepo(pool)
	subs := postgres.NewPostgresSubscriptionRepo(pool)
	now := time.Now().UTC()
	span := time.Duration(plan.DurationDays) * 24 * time.Hour

	fixtures := []struct {
		id      string
		tgID    int64
		balance int64
		// startedAt is zero for users without a subscription.
		startedAt time.Time
	}{
		{"e2e-buyer", 900001, 1000, time.Time{}},
		{"e2e-warn", 900002, 0, now.Add(-span + 12*time.Hour)},
		{"e2e-overdue", 900003, 0, now.Add(-span - 72*time.Hour)},
	}

	for _, f := range fixtures {
		u, err := model.NewUser(f.id, f.tgID, f.id, decimal.NewFromInt(f.balance))
		if err != nil {
			log.Fatalf("user %s: %v", f.id, err)
		}
		if err := users.Save(ctx, nil, u); err != nil {
			log.Fatalf("failed to save user %s: %v", f.id, err)
		}
		if f.startedAt.IsZero() {
			log.Printf("  %s balance=%d", f.id, f.balance)
			continue
		}
		final, _ := plan.FinalPrice()
		s, err := model.NewSubscription(u.ID, plan, final, f.startedAt)
		if err != nil {
			log.Fatalf("subscription %s: %v", f.id, err)
		}
		if err := subs.Save(ctx, nil, s); err != nil {
			log.Fatalf("failed to save subscription for %s: %v", f.id, err)
		}
		log.Printf("  %s plan=%s expires_at=%s", f.id, plan.ID, s.ExpiresAt.Format(time.RFC3339))
	}
}
