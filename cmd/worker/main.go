package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/kassa/internal/app"
	"github.com/odyssey-erp/kassa/internal/auth"
	"github.com/odyssey-erp/kassa/internal/inventory"
	jobmetrics "github.com/odyssey-erp/kassa/internal/jobs"
	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/sales"
	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, shared.NewAuditLogger(pool), inventory.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})

	mailLang, err := language.Parse(cfg.MailLanguage)
	if err != nil {
		logger.Warn("invalid MAIL_LANGUAGE, falling back to English", slog.String("value", cfg.MailLanguage))
		mailLang = language.English
	}

	reconcileJob := &jobs.ReconcileJob{
		Sales:      sales.NewRepository(pool),
		Movements:  inventoryRepo,
		Mail:       client,
		AlertEmail: cfg.AlertEmail,
		Logger:     logger,
		Metrics:    metrics,
	}
	lowStockJob := &jobs.LowStockScanJob{
		Inventory: inventoryService,
		Mail:      client,
		Recipient: cfg.AlertEmail,
		Language:  mailLang,
		Logger:    logger,
		Metrics:   metrics,
	}
	cleanupJob := &jobs.CleanupJob{
		Idempotency: shared.NewIdempotencyStore(pool),
		Sessions:    auth.NewRepository(pool),
		Logger:      logger,
		Metrics:     metrics,
	}

	lowStockTask, err := jobs.NewLowStockScanTask(jobs.LowStockScanPayload{})
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewCleanupTask(jobs.CleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Mailer:      jobs.LogMailer{Logger: logger},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSaleReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskMaintenanceCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
