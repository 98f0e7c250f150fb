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
	"golang.org/x/text/language"

	"github.com/meridian-sfa/meridian-sfa/internal/agents"
	"github.com/meridian-sfa/meridian-sfa/internal/app"
	"github.com/meridian-sfa/meridian-sfa/internal/identity"
	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/invoices"
	"github.com/meridian-sfa/meridian-sfa/internal/kpi"
	"github.com/meridian-sfa/meridian-sfa/internal/ledger"
	"github.com/meridian-sfa/meridian-sfa/internal/observability"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/cache"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/reconciliation"
	"github.com/meridian-sfa/meridian-sfa/internal/returns"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
	"github.com/meridian-sfa/meridian-sfa/internal/stockload"
	syncmod "github.com/meridian-sfa/meridian-sfa/internal/sync"
	"github.com/meridian-sfa/meridian-sfa/internal/visits"
	"github.com/meridian-sfa/meridian-sfa/jobs"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService(dbpool)
	guard := rbac.Middleware{Logger: logger}

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, auditLogger, cfg.TokenTTL)
	identityHandler := identity.NewHandler(logger, identityService)
	authenticator := identity.NewAuthenticator(logger, identityRepo, rbacService)

	agentsRepo := agents.NewRepository(dbpool)
	agentsService := agents.NewService(agentsRepo, auditLogger)
	agentsHandler := agents.NewHandler(logger, agentsService, guard)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, guard)

	stockloadRepo := stockload.NewRepository(dbpool)
	stockloadService := stockload.NewService(stockloadRepo, approvalRecorder, auditLogger)
	stockloadHandler := stockload.NewHandler(logger, stockloadService, guard)

	invoicesRepo := invoices.NewRepository(dbpool)
	invoicesService := invoices.NewService(invoicesRepo)
	invoicesHandler := invoices.NewHandler(logger, invoicesService, guard)

	pingStore := syncmod.NewPingStore(redisClient, agentsService, cfg.PingTTL)
	coordinator := syncmod.NewCoordinator(invoicesRepo, pingStore, agentsService, auditLogger, logger, syncmod.Config{
		Attempts:  cfg.SyncAttempts,
		BaseDelay: cfg.SyncBaseDelay,
	})
	syncHandler := syncmod.NewHandler(logger, coordinator, guard)

	returnsRepo := returns.NewRepository(dbpool)
	returnsService := returns.NewService(returnsRepo, agentsService, auditLogger)
	returnsHandler := returns.NewHandler(logger, returnsService, guard)

	visitsRepo := visits.NewRepository(dbpool)
	visitsService := visits.NewService(visitsRepo, visits.Config{PlausibleRadiusMeters: cfg.VisitPlausibleRadiusM})
	visitsHandler := visits.NewHandler(logger, visitsService, guard)

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool))

	reconRepo := reconciliation.NewRepository(dbpool)
	reconService := reconciliation.NewService(reconRepo, ledgerService, approvalRecorder, auditLogger, logger)
	statementRenderer := reconciliation.NewStatementRenderer(language.Indonesian, "IDR")
	reconHandler := reconciliation.NewHandler(logger, reconService, statementRenderer, guard)

	kpiService := kpi.NewService(kpi.NewRepository(dbpool), redisClient, kpi.DefaultTargetPolicy(), cfg.KPICacheTTL, logger)
	kpiHandler := kpi.NewHandler(logger, kpiService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger, guard)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Authenticator:         authenticator.Middleware,
		IdentityHandler:       identityHandler,
		AgentsHandler:         agentsHandler,
		StockLoadHandler:      stockloadHandler,
		InventoryHandler:      inventoryHandler,
		InvoicesHandler:       invoicesHandler,
		SyncHandler:           syncHandler,
		ReturnsHandler:        returnsHandler,
		VisitsHandler:         visitsHandler,
		ReconciliationHandler: reconHandler,
		KPIHandler:            kpiHandler,
		JobHandler:            jobHandler,
		Metrics:               metrics,
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
