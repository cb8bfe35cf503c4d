package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-books/meridian/internal/ap"
	"github.com/meridian-books/meridian/internal/app"
	"github.com/meridian-books/meridian/internal/ar"
	"github.com/meridian-books/meridian/internal/balances"
	"github.com/meridian-books/meridian/internal/fx"
	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/periods"
	"github.com/meridian-books/meridian/internal/platform/cache"
	"github.com/meridian-books/meridian/internal/platform/db"
	"github.com/meridian-books/meridian/internal/reconcile"
	"github.com/meridian-books/meridian/internal/shared"
	"github.com/meridian-books/meridian/jobs"
)

// sweepEnqueuer adapts the jobs client to the subsidiary services.
type sweepEnqueuer struct {
	client *jobs.Client
}

func (e sweepEnqueuer) EnqueueSweep(ctx context.Context, side string) error {
	_, err := e.client.EnqueueSubsidiaryRecompute(ctx, jobs.SubsidiaryRecomputePayload{Ledger: side})
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	balancesCache := balances.NewCache(redisClient, cfg.CacheTTL)
	if err := balancesCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, balancesCache, cfg.EditWindows())
	recipes := ledger.NewRecipes(ledger.NewMappingResolver(ledgerRepo))

	balancesRepo := balances.NewRepository(pool)
	balancesService := balances.NewService(balancesRepo, balancesCache, balances.MonthlyGrouper{})

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, auditLogger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	sweeps := sweepEnqueuer{client: jobsClient}

	arRepo := ar.NewRepository(pool)
	arService := ar.NewService(arRepo, ledgerService, recipes, auditLogger)
	arService.WithSweeps(sweeps)

	apRepo := ap.NewRepository(pool)
	apService := ap.NewService(apRepo, ledgerService, recipes, auditLogger)
	apService.WithSweeps(sweeps)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, balancesService, ledgerService, recipes, auditLogger)

	fxRepo := fx.NewRepository(pool)
	fxService := fx.NewService(fxRepo, ledgerService, recipes, auditLogger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		BalancesHandler:  balances.NewHandler(logger, balancesService),
		PeriodsHandler:   periods.NewHandler(logger, periodsService),
		ARHandler:        ar.NewHandler(logger, arService),
		APHandler:        ap.NewHandler(logger, apService),
		ReconcileHandler: reconcile.NewHandler(logger, reconcileService),
		FXHandler:        fx.NewHandler(logger, fxService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
