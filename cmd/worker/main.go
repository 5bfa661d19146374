package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/artha-erp/artha/internal/app"
	"github.com/artha-erp/artha/internal/assets"
	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/templates"
	"github.com/artha-erp/artha/internal/transactions"
	"github.com/artha-erp/artha/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool))
	templatesService := templates.NewService(templates.NewRepository(pool))
	builder := transactions.NewBuilder(ledgerService)
	transactionsService := transactions.NewService(transactions.NewRepository(pool), templatesService, builder, nil, auditLogger)

	assetsService := assets.NewService(assets.NewRepository(pool), transactionsService, auditLogger, logger, assets.Config{
		DepreciationTemplateID: cfg.DepreciationTemplateID,
	})

	depreciationTask, err := jobs.NewDepreciationRunTask("")
	if err != nil {
		logger.Error("build depreciation task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(30 * 24 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deps: jobs.Deps{
			Assets:      assetsService,
			Idempotency: idempotencyStore,
			Logger:      logger,
		},
		Cron: []jobs.CronRegistration{
			// The empty period resolves to the month that just closed.
			{Spec: "0 2 1 * *", Task: depreciationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
