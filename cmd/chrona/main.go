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
	"github.com/joho/godotenv"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/app"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/billing"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/accounts"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/posting"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/cache"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/reports"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(dbpool)

	tenantRepo := tenant.NewRepository(dbpool)
	tenantService := tenant.NewService(tenantRepo)
	tenantHandler := tenant.NewHandler(logger, tenantService)

	balanceCache := accounts.NewBalanceCache(redisClient, cfg.SubtreeBalanceTTL)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, balanceCache, auditLogger, cfg.AccountRetentionWindow)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	postingRepo := posting.NewRepository(dbpool, cfg.PostingLockTimeout)
	postingEngine := posting.NewEngine(postingRepo, auditLogger, balanceCache, ledgerMetrics, cfg.PostingMaxRetries, cfg.PostingRetryDelay)
	postingHandler := posting.NewHandler(logger, postingEngine)

	billingRepo := billing.NewRepository(dbpool)
	reconciler := billing.NewReconciler(billingRepo, auditLogger, ledgerMetrics)
	billingHandler := billing.NewHandler(logger, reconciler)

	reportsRepo := reports.NewRepository(dbpool)
	generator := reports.NewGenerator(reportsRepo, auditLogger, ledgerMetrics)
	reportsHandler := reports.NewHandler(logger, generator)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		TenantService:   tenantService,
		TenantHandler:   tenantHandler,
		AccountsHandler: accountsHandler,
		PostingHandler:  postingHandler,
		BillingHandler:  billingHandler,
		ReportsHandler:  reportsHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
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
