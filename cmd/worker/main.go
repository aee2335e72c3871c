package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/platform/eventbus"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
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

	events := inventory.PublishTo(eventbus.New(redisClient, cfg.EventsChannel))
	idempotency := shared.NewIdempotencyStore(pool)
	service := inventory.NewService(inventory.NewRepository(pool), inventory.ServiceDeps{
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: idempotency,
		Locker:      shared.NewRedisLocker(redisClient, cfg.InventoryLockTTL),
		Events:      events,
		Logger:      logger.With(slog.String("module", "inventory")),
	})

	metrics := jobmetrics.NewMetrics(nil)
	reports := jobs.NewInventoryJobs(service, events, logger, metrics)
	maintenance := &jobs.MaintenanceJobs{Keys: idempotency, Costs: service, Logger: logger, Metrics: metrics}

	schedule, err := jobs.DefaultSchedule(time.Now().UTC(), cfg.IdempotencyTTL, jobs.ScheduleSpecs{
		Valuation: cfg.ValuationCron,
		LowStock:  cfg.LowStockCron,
		Cleanup:   cfg.CleanupCron,
	})
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}
	for i := range schedule {
		schedule[i].Options = append(schedule[i].Options, asynq.MaxRetry(3))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    jobs.InventoryHandlers(reports, maintenance),
		Cron:        schedule,
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
