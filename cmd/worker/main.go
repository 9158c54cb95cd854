package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

// metricsAddr serves the worker's /metrics endpoint.
const metricsAddr = ":9091"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics(cfg.OTelServiceName+"-worker", cfg.AppEnv)
	tracker := jobmetrics.NewMetrics(metrics.Registerer())
	invoices := ar.NewService(ar.NewRepository(pool), customers.NewRepository(pool), logger)

	sweepTask, err := jobs.NewOverdueSweepTask(nil)
	if err != nil {
		logger.Error("build overdue sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Routes: []jobs.Route{
			{Task: jobs.TaskInvoiceIssued, Handle: (&jobs.InvoiceIssuedJob{Logger: logger, Metrics: tracker}).Handle},
			{Task: jobs.TaskInvoiceOverdueSweep, Handle: (&jobs.OverdueSweepJob{Invoices: invoices, Logger: logger, Metrics: tracker}).Handle},
		},
		Schedules: []jobs.Schedule{
			{Cron: cfg.OverdueSweepCron, Task: sweepTask, Opts: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
