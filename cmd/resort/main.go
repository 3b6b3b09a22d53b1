package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-resort/cmd/resort/cli"
	"github.com/odyssey-erp/odyssey-resort/internal/app"
	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/integration"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/observability"
	"github.com/odyssey-erp/odyssey-resort/internal/orders"
	"github.com/odyssey-erp/odyssey-resort/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-resort/internal/platform/db"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
	"github.com/odyssey-erp/odyssey-resort/jobs"
	"github.com/odyssey-erp/odyssey-resort/migrations"
)

// services is the wired domain layer shared by the server and the commands.
type services struct {
	ledger  *ledger.Service
	stock   *stock.Service
	billing *billing.Service
	orders  *orders.Service
}

func buildServices(pool *pgxpool.Pool, cfg *app.Config, logger *slog.Logger) services {
	auditLogger := shared.NewAuditLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, logger)
	stockService := stock.NewService(stock.NewRepository(pool), auditLogger, shared.NewIdempotencyStore(pool), cfg.StockPolicy(), logger)
	hooks := integration.NewHooks(cfg.LedgerRoles(), logger)
	billingService := billing.NewService(billing.NewRepository(pool), hooks, auditLogger, logger)

	ordersService := orders.NewService(orders.NewRepository(pool), catalog.NewRepository(pool), stockService, billingService, logger)
	ordersService.WithAudit(auditLogger)
	ordersService.WithApprovals(shared.NewApprovalRecorder(pool, logger))

	return services{ledger: ledgerService, stock: stockService, billing: billingService, orders: ordersService}
}

func main() {
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

	root := cli.NewRootCommand(cli.Options{
		Serve: func(ctx context.Context) error {
			if app.InTestMode() {
				logger.Info("test mode detected, skipping runtime startup")
				return nil
			}
			return serve(ctx, cfg, logger)
		},
		Open: func(ctx context.Context) (*cli.Env, error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{AppName: "resort-cli", MaxConns: 2})
			if err != nil {
				return nil, err
			}
			svc := buildServices(pool, cfg, logger)
			return &cli.Env{
				Migrate: func(ctx context.Context) ([]string, error) {
					return db.Migrate(ctx, pool, migrations.Files)
				},
				Ledger:  svc.ledger,
				Billing: svc.billing,
				Roles:   cfg.LedgerRoles(),
				Close:   pool.Close,
			}, nil
		},
		OpenJobs: func(context.Context) (cli.JobQueue, error) {
			return cli.NewJobsCLI(cfg.Redis().Asynq())
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{AppName: "resort-api"})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if applied, err := db.Migrate(ctx, pool, migrations.Files); err != nil {
		return fmt.Errorf("migrate: %w", err)
	} else if len(applied) > 0 {
		logger.Info("migrations applied", slog.Any("files", applied))
	}

	svc := buildServices(pool, cfg, logger)
	if err := svc.ledger.CheckRoles(ctx, cfg.LedgerRoles()); err != nil {
		logger.Warn("ledger roles not backed by accounts; run seed-chart", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	svc.orders.WithEffectRecorder(metrics)

	// Redis is optional: without it order locks are skipped and
	// job triggers are disabled.
	var jobHandler *jobs.Handler
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		jobHandler = jobs.NewHandler(nil, nil, logger)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		svc.orders.WithLocker(shared.NewLocker(redislock.New(redisClient), cfg.OrderLockTTL))

		redisOpts := cfg.Redis().Asynq()
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer client.Close()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		jobHandler = jobs.NewHandler(inspector, client, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		Ready:          pool,
		LedgerHandler:  ledger.NewHandler(logger, svc.ledger),
		StockHandler:   stock.NewHandler(logger, svc.stock),
		OrdersHandler:  orders.NewHandler(logger, svc.orders),
		BillingHandler: billing.NewHandler(logger, svc.billing),
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
