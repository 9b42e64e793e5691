package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/cmd/backoffice/cli"
	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/orchestrator"
	"github.com/odyssey-erp/backoffice/internal/platform/migration"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/stock"
	"github.com/odyssey-erp/backoffice/jobs"
)

const usage = `usage: backoffice [command]

commands:
  serve                          run the HTTP API (default)
  migrate up|down|version        manage the database schema
  recalc [--date=YYYY-MM-DD]     rebuild the warehouse stock snapshot
  rollup [--date=YYYY-MM-DD]     materialise ledger balances at a cutover
  jobs trigger <task> [--date=]  enqueue stock:recalculate or ledger:rollup
  jobs inspect                   show the default queue
`

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

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	code := run(ctx, cfg, logger, command, args)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) int {
	out := cli.Output{}
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		action := ""
		if len(args) > 0 {
			action = args[0]
		}
		m, err := migration.New(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("init migrator", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.Warn("migrator close", slog.Any("error", err))
			}
		}()
		return cli.MigrateCommand(m, action, out)
	case "recalc", "rollup":
		date, ok := parseDate(command, args)
		if !ok {
			return 2
		}
		c, cleanup, err := wire(ctx, cfg, logger)
		if err != nil {
			logger.Error("wire components", slog.Any("error", err))
			return 1
		}
		defer cleanup()
		if command == "recalc" {
			return cli.RecalcCommand(ctx, c.recalc, date, out)
		}
		return cli.RollupCommand(ctx, c.rollup, date, out)
	case "jobs":
		return runJobs(ctx, cfg, args, out)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

func parseDate(name string, args []string) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	date := fs.String("date", "", "day in YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	return *date, true
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, out cli.Output) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		date, ok := parseDate("jobs trigger", args[2:])
		if !ok {
			return 2
		}
		client, err := jobs.NewClient(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		defer client.Close()
		return cli.NewJobsCLI(client, nil).Trigger(ctx, args[1], date, out)
	case "inspect":
		inspector := asynq.NewInspector(opts)
		defer inspector.Close()
		return cli.NewJobsCLI(nil, inspector).Inspect(out)
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown action %q\n", args[0])
		return 2
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	c, cleanup, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire components", slog.Any("error", err))
		return 1
	}
	defer cleanup()

	sessionManager := shared.NewSessionManager(c.redis, "backoffice_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	idempotency := shared.NewIdempotencyStore(c.redis, 24*time.Hour)

	authService := auth.NewService(auth.NewRepository(c.pool), logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		AuthHandler:         auth.NewHandler(logger, authService, sessionManager),
		OrchestratorHandler: orchestrator.NewHandler(logger, c.orchestrator, idempotency, c.loc),
		LedgerHandler:       ledger.NewHandler(logger, c.reports, c.loc, time.Now),
		StockHandler:        stock.NewHandler(logger, c.stockReader, c.loc, time.Now),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             c.metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", c.loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		exit = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return exit
}
