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

	"github.com/odyssey-erp/backoffice/internal/app"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/stock"
	"github.com/odyssey-erp/backoffice/jobs"
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
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("resolve timezone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, TimeZone: cfg.AppTimezone})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 5*time.Second)
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

	stockLedger := stock.NewLedger(loc)
	snapshotter := stock.NewSnapshotter(stock.NewPGStore(pool), stockLedger, logger, metrics)
	recalcJob := jobs.NewStockRecalcJob(snapshotter, loc, logger, metrics)

	reports := ledger.NewReports(ledger.NewPGStore(pool), cache.NewVersioned(redisClient, "reports", cfg.ReportCacheTTL), ledger.ReportsConfig{
		Location:          loc,
		EquityAccountCode: cfg.EquityAccountCode,
		Logger:            logger,
	})
	rollupJob := jobs.NewLedgerRollupJob(reports, loc, logger, metrics)

	recalcTask, err := jobs.NewStockRecalculateTask("")
	if err != nil {
		logger.Error("build recalc task", slog.Any("error", err))
		os.Exit(1)
	}
	rollupTask, err := jobs.NewLedgerRollupTask("")
	if err != nil {
		logger.Error("build rollup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockRecalculate, Handler: recalcJob.Handle},
			{Type: jobs.TaskLedgerRollup, Handler: rollupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockRecalcCron, Task: recalcTask},
			{Spec: cfg.LedgerRollupCron, Task: rollupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("timezone", loc.String()),
		slog.String("stock_recalc_cron", cfg.StockRecalcCron), slog.String("ledger_rollup_cron", cfg.LedgerRollupCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
