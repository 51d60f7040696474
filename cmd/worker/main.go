package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/app"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/billing"
	jobmetrics "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/jobs"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/reports"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	tenantService := tenant.NewService(tenant.NewRepository(pool))

	billingRepo := billing.NewRepository(pool)
	reconciler := billing.NewReconciler(billingRepo, auditLogger, ledgerMetrics)

	reportsRepo := reports.NewRepository(pool)
	generator := reports.NewGenerator(reportsRepo, auditLogger, ledgerMetrics)

	ledgerJobs := jobs.NewLedgerJobs(logger, tenantService, reconciler, generator, jobmetrics.NewMetrics(metrics.Registerer()))

	sweepTask, err := jobs.NewOverdueSweepTask(jobs.OverdueSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	reportTask, err := jobs.NewReportGenerateTask(jobs.ReportGeneratePayload{Type: string(reports.ReportTypeReconciliation)})
	if err != nil {
		logger.Error("build report task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Ledger:    ledgerJobs,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepSpec, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: reportTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
