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
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-quotes/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/currencies"
	"github.com/odyssey-erp/odyssey-quotes/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	case "token":
		os.Exit(runToken(cfg, args))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "usage: odyssey [serve | jobs trigger <name> | jobs stats | token --sub <uuid> --role <admin|customer>]\n")
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	// The quote cache is optional; without redis reads go straight to postgres.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, quote cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	tracerProvider, shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics(cfg.OTelServiceName, cfg.AppEnv)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(redisOpts, jobmetrics.NewMetrics(metrics.Registerer()))
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	customerRepo := customers.NewRepository(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	quoteService := quotations.NewService(quotations.ServiceDeps{
		Repo:       quotations.NewRepository(pool),
		Customers:  customerRepo,
		Currencies: currencies.NewRepository(pool),
		Products:   products.NewRepository(pool),
		Materializer: ar.NewMaterializer(ar.MaterializerConfig{
			GracePeriod:  cfg.InvoiceGracePeriod,
			NumberPrefix: cfg.InvoiceNumberPrefix,
			MaxAttempts:  cfg.NumberMaxAttempts,
		}),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: idempotency,
		Notifier:    jobsClient,
		Cache:       quotations.NewCache(redisClient, cfg.QuoteCacheTTL),
		Metrics:     quotations.NewMetrics(metrics.Registerer()),
		Tracer:      tracerProvider.Tracer("github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"),
		Logger:      logger,
	}, quotations.ServiceConfig{
		NumberPrefix:      cfg.QuoteNumberPrefix,
		NumberMaxAttempts: cfg.NumberMaxAttempts,
		EnforceStock:      cfg.ReservationEnforceStock,
	})
	invoiceService := ar.NewService(ar.NewRepository(pool), customerRepo, logger)

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Verifier: auth.NewTokens(auth.Config{
			Secret: cfg.JWTSecret,
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.JWTTokenTTL,
		}),
		QuoteHandler:   quotations.NewHandler(logger, quoteService),
		InvoiceHandler: ar.NewHandler(logger, invoiceService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		TracerProvider: tracerProvider,
		Database:       pool,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := idempotency.Cleanup(gctx, cfg.IdempotencyRetention); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	})
	return g.Wait()
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if len(args) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "usage: odyssey jobs <trigger <name> | stats> [--json]")
		return 2
	}
	sub := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	opts := cli.JobsOptions{JSONOutput: *jsonOut}
	switch sub {
	case "trigger":
		return jobsCLI.TriggerCommand(ctx, fs.Arg(0), opts)
	case "stats":
		return jobsCLI.StatsCommand(opts)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", sub)
		return 2
	}
}

func runToken(cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "application user uuid")
	role := fs.String("role", string(shared.RoleCustomer), "admin or customer")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return cli.TokenCommand(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTokenTTL,
	}, cli.TokenOptions{Subject: *sub, Role: *role, TTL: *ttl, JSONOutput: *jsonOut})
}
