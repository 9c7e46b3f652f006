package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
	tele "subscription-ledger/internal/infra/adapters/telegram"
	"subscription-ledger/internal/infra/api"
	"subscription-ledger/internal/infra/api/apiv1"
	"subscription-ledger/internal/infra/catalog"
	"subscription-ledger/internal/infra/clock"
	"subscription-ledger/internal/infra/db/memory"
	pg "subscription-ledger/internal/infra/db/postgres"
	"subscription-ledger/internal/infra/logging"
	"subscription-ledger/internal/infra/metrics"
	"subscription-ledger/internal/infra/outbox"
	red "subscription-ledger/internal/infra/redis"
	"subscription-ledger/internal/infra/sched"
	"subscription-ledger/internal/infra/web"
	"subscription-ledger/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type storage struct {
	users repository.UserRepository
	subs  repository.SubscriptionRepository
	txns  repository.TransactionRepository
	tm    repository.TransactionManager
	ready func(ctx context.Context) error
	close func()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	clk := clock.Real{}

	// ---- Storage ----
	store, err := openStorage(ctx, g, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// ---- Redis (optional) ----
	var (
		lock    sched.SweepLock
		limiter api.Limiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		lock = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
		logger.Info().Str("addr", cfg.Redis.URL).Msg("redis connected: sweep lock and rate limiting enabled")
	} else {
		logger.Warn().Msg("redis not configured: sweeps run unguarded, purchases are not rate limited")
	}

	// ---- Catalog ----
	plans := catalog.NewFileCatalog(cfg.Catalog.Path, logger)
	if _, err := plans.GetPlans(ctx, true); err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		g.Go(func() error { return plans.Watch(ctx) })
	}

	// ---- Notification sink + outbox ----
	subUC := usecase.NewSubscriptionUseCase(store.subs, clk)
	var sink adapter.NotificationSink
	if cfg.Bot.Token != "" {
		s, err := tele.NewSink(cfg.Bot, store.users, subUC, logger)
		if err != nil {
			return err
		}
		sink = s
	} else {
		logger.Warn().Msg("bot.token empty: lifecycle effects are only logged")
		sink = tele.NewNoopSink(subUC, logger)
	}
	notifUC := usecase.NewNotificationUseCase(sink, store.subs, store.txns, clk, usecase.NotificationOptions{
		CallTimeout: cfg.Outbox.CallTimeout,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		RetryDelay:  cfg.Outbox.RetryDelay,
		RecordGrace: cfg.Outbox.RecordGrace,
	}, logger)
	events := outbox.New(notifUC, outbox.Options{
		Workers:      cfg.Outbox.Workers,
		MaxPending:   cfg.Outbox.MaxPending,
		DrainTimeout: cfg.Outbox.DrainTimeout,
	}, logger)
	g.Go(func() error { return events.Run(ctx) })

	// ---- Ledger use cases ----
	purchaseUC := usecase.NewPurchaseUseCase(store.users, store.subs, store.txns, plans, store.tm, events, clk, logger)
	sweepUC := usecase.NewSweepUseCase(store.subs, store.txns, store.tm, events, clk, usecase.SweepOptions{
		WarningWindow: cfg.Scheduler.WarningWindow,
		TxRetention:   cfg.Scheduler.TxRetention,
	}, logger)

	// ---- Scheduler + recovery ----
	schedOpts := sched.Options{
		Interval:      cfg.Scheduler.Interval,
		RecoveryDelay: cfg.Scheduler.RecoveryDelay,
		RunTimeout:    cfg.Scheduler.RunTimeout,
		LockTTL:       cfg.Redis.LockTTL,
	}
	expiry := sched.NewExpiryWorker(sweepUC, subUC, lock, clk, schedOpts, logger)
	recovery := sched.NewRecoveryWorker(sweepUC, subUC, lock, clk, schedOpts, logger)
	g.Go(func() error { return expiry.Run(ctx) })
	g.Go(func() error { return recovery.Run(ctx) })

	// ---- HTTP ----
	v1 := apiv1.NewServer(apiv1.Deps{
		Purchases:     purchaseUC,
		Subscriptions: subUC,
		Catalog:       plans,
		Clock:         clk,
		Dev:           cfg.Runtime.Dev,
	}, logger)
	routerOpts := api.RouterOptions{Config: cfg.API, Limiter: limiter, Ready: store.ready}
	if cfg.API.AdminKey != "" {
		balanceUC := usecase.NewBalanceUseCase(store.users, store.tm, logger)
		routerOpts.Admin = web.NewServer(balanceUC, subUC, plans, cfg.API.AdminKey, logger)
	}
	router := api.NewRouter(v1, routerOpts, logger)
	srv := api.NewServer(cfg.API.Port, router, logger)
	g.Go(func() error { return srv.Run(ctx) })

	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("subscription ledger started")
	return g.Wait()
}

// openStorage picks Postgres, or the in-memory store in dev mode without a database URL.
func openStorage(ctx context.Context, g *errgroup.Group, cfg *config.Config, logger *zerolog.Logger) (storage, error) {
	if cfg.Runtime.Dev && cfg.Database.URL == "" {
		logger.Warn().Msg("[DEV MODE] using the in-memory store; data is lost on exit")
		m := memory.NewStore()
		return storage{
			users: m.Users(),
			subs:  m.Subscriptions(),
			txns:  m.Transactions(),
			tm:    m,
			ready: func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return storage{}, err
	}
	g.Go(func() error { return pg.ReportPoolStats(ctx, pool, 15*time.Second) })
	return storage{
		users: pg.NewPostgresUserRepo(pool),
		subs:  pg.NewPostgresSubscriptionRepo(pool),
		txns:  pg.NewPostgresTransactionRepo(pool),
		tm:    pg.NewTxManager(pool),
		ready: pool.Ping,
		close: pool.Close,
	}, nil
}
