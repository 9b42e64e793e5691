package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/costing"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orchestrator"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequencer"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
	"github.com/odyssey-erp/backoffice/jobs"
)

// components holds the engines shared by the server and operator commands.
type components struct {
	cfg     *app.Config
	logger  *slog.Logger
	loc     *time.Location
	pool    *pgxpool.Pool
	redis   *redis.Client
	metrics *observability.Metrics

	reports      *ledger.Reports
	stockReader  *stock.Reader
	orchestrator *orchestrator.Service
	recalc       *jobs.StockRecalcJob
	rollup       *jobs.LedgerRollupJob
}

func wire(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*components, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, TimeZone: cfg.AppTimezone})
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr, 5*time.Second)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		pool.Close()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	reportCache := cache.NewVersioned(redisClient, "reports", cfg.ReportCacheTTL)
	reports := ledger.NewReports(ledger.NewPGStore(pool), reportCache, ledger.ReportsConfig{
		Location:          loc,
		EquityAccountCode: cfg.EquityAccountCode,
		Logger:            logger,
	})

	stockLedger := stock.NewLedger(loc)
	stockStore := stock.NewPGStore(pool)
	snapshotter := stock.NewSnapshotter(stockStore, stockLedger, logger, jobMetrics)

	service := orchestrator.NewService(
		orchestrator.NewRepository(pool, shared.NewAuditLogger()),
		orchestrator.Dependencies{
			Sequencer: sequencer.New(sequencer.Config{Location: loc, Retries: cfg.OrderInvoiceRetries, Metrics: metrics}),
			Ledger:    ledger.NewEngine(metrics, loc),
			Stock:     stockLedger,
			Costing:   costing.NewEngine(metrics),
			Reports:   reports,
		},
		orchestrator.Config{
			Accounts:         cfg.SystemAccounts(),
			CreditTermDays:   cfg.CreditTermDays,
			DefaultContactID: cfg.DefaultContactID,
			Location:         loc,
		},
		logger,
	)

	return &components{
		cfg:          cfg,
		logger:       logger,
		loc:          loc,
		pool:         pool,
		redis:        redisClient,
		metrics:      metrics,
		reports:      reports,
		stockReader:  stock.NewReader(stockStore, stockLedger),
		orchestrator: service,
		recalc:       jobs.NewStockRecalcJob(snapshotter, loc, logger, jobMetrics),
		rollup:       jobs.NewLedgerRollupJob(reports, loc, logger, jobMetrics),
	}, cleanup, nil
}
