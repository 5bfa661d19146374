package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artha-erp/artha/internal/app"
	"github.com/artha-erp/artha/internal/assets"
	"github.com/artha-erp/artha/internal/inventory"
	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/payroll"
	"github.com/artha-erp/artha/internal/platform/cache"
	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/production"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/templates"
	"github.com/artha-erp/artha/internal/transactions"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Without Redis the lockers become no-ops.
		logger.Warn("connect redis", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := shared.NewLocker(redisClient)
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo)

	templatesRepo := templates.NewRepository(pool)
	templatesService := templates.NewService(templatesRepo)

	builder := transactions.NewBuilder(ledgerService)
	transactionsRepo := transactions.NewRepository(pool)
	transactionsService := transactions.NewService(transactionsRepo, templatesService, builder, locker, auditLogger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, transactionsService, locker, idempotencyStore, logger, inventory.Config{
		PurchaseTemplateID: cfg.PurchaseTemplateID,
		SaleTemplateID:     cfg.SaleTemplateID,
	})

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, transactionsService, locker, auditLogger, logger, production.Config{
		ProductionTemplateID: cfg.ProductionTemplateID,
	})

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(assetsRepo, transactionsService, auditLogger, logger, assets.Config{
		DepreciationTemplateID: cfg.DepreciationTemplateID,
	})

	payrollRepo := payroll.NewRepository(pool)
	payrollService := payroll.NewService(payrollRepo, transactionsService, auditLogger, payroll.Config{
		PayrollTemplateID: cfg.PayrollTemplateID,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		LedgerHandler:       ledger.NewHandler(logger, ledgerService),
		TemplatesHandler:    templates.NewHandler(logger, templatesService),
		TransactionsHandler: transactions.NewHandler(logger, transactionsService, metrics),
		InventoryHandler:    inventory.NewHandler(logger, inventoryService, metrics),
		ProductionHandler:   production.NewHandler(logger, productionService, metrics),
		AssetsHandler:       assets.NewHandler(logger, assetsService, metrics),
		PayrollHandler:      payroll.NewHandler(logger, payrollService, metrics),
		Metrics:             metrics,
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
