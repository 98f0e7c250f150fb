package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-sfa/meridian-sfa/internal/app"
	jobmetrics "github.com/meridian-sfa/meridian-sfa/internal/jobs"
	"github.com/meridian-sfa/meridian-sfa/internal/kpi"
	"github.com/meridian-sfa/meridian-sfa/internal/ledger"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/cache"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/reconciliation"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
	"github.com/meridian-sfa/meridian-sfa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	metrics := jobmetrics.NewMetrics(nil)

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool))
	reconService := reconciliation.NewService(reconciliation.NewRepository(pool), ledgerService, approvalRecorder, auditLogger, logger)
	openPeriodsJob := reconciliation.NewOpenPeriodsJob(reconService, logger, metrics)

	kpiService := kpi.NewService(kpi.NewRepository(pool), redisClient, kpi.DefaultTargetPolicy(), cfg.KPICacheTTL, logger)
	warmupJob := kpi.NewWarmupJob(kpiService, logger)

	cleanupJob := jobs.NewCleanupIdempotencyJob(idempotencyStore, logger)

	openPeriodsTask, err := jobs.NewOpenPeriodsTask(jobs.OpenPeriodsPayload{})
	if err != nil {
		logger.Error("build open periods task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewKPIWarmupTask(jobs.KPIWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewCleanupIdempotencyTask(jobs.CleanupIdempotencyPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeOpenPeriods, Handler: jobs.WithMetrics("open_periods", metrics, openPeriodsJob.Handle)},
			{Type: jobs.TaskTypeKPIWarmup, Handler: jobs.WithMetrics("kpi_warmup", metrics, warmupJob.Handle)},
			{Type: jobs.TaskTypeCleanupIdempotency, Handler: jobs.WithMetrics("cleanup_idempotency", metrics, cleanupJob.Handle)},
		},
		Cron: []jobs.CronRegistration{
			// Settlement periods open on the first day of the month.
			{Spec: "10 0 1 * *", Task: openPeriodsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			// Hourly warmup keeps supervisor dashboards off the cold path.
			{Spec: "0 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
