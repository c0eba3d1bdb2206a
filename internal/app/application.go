package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/invest-portal/portal_service/internal/api/handlers/wallet"
	"github.com/invest-portal/portal_service/internal/api/routes"
	"github.com/invest-portal/portal_service/internal/domain/services/withdrawal"
	"github.com/invest-portal/portal_service/internal/infrastructure/adapters"
	"github.com/invest-portal/portal_service/internal/infrastructure/config"
	"github.com/invest-portal/portal_service/internal/infrastructure/database"
	"github.com/invest-portal/portal_service/internal/infrastructure/repositories"
	"github.com/invest-portal/portal_service/internal/workers/withdrawal_sweep"
	"github.com/invest-portal/portal_service/pkg/logger"
	"github.com/invest-portal/portal_service/pkg/metrics"
	"github.com/invest-portal/portal_service/pkg/tracing"
)

// Application represents the main application
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *sqlx.DB
	redis  *redis.Client
	server *http.Server

	sweepWorker *withdrawal_sweep.Worker

	tracingShutdown func(context.Context) error
}

// NewApplication creates a new application instance
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes the application
func (app *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	log := logger.New(cfg.LogLevel, cfg.Environment)
	app.log = log

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := app.initializeTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	service, ledger, err := app.buildWithdrawalService()
	if err != nil {
		return err
	}

	if err := app.initializeWorkers(service); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	app.initializeServer(service, ledger)
	return nil
}

// buildWithdrawalService wires the repositories, adapters and lifecycle service
func (app *Application) buildWithdrawalService() (*withdrawal.Service, *repositories.BalanceRepository, error) {
	withdrawalRepo := repositories.NewWithdrawalRepository(app.db)
	balanceRepo := repositories.NewBalanceRepository(app.db)
	eventStream := adapters.NewRedisEventStream(app.redis, app.log)

	notifiers := []adapters.WithdrawalNotifier{eventStream}
	if app.cfg.Email.Enabled {
		emailNotifier, err := adapters.NewEmailNotifier(app.cfg.Email, app.log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create email notifier: %w", err)
		}
		notifiers = append(notifiers, emailNotifier)
		app.log.Info("Operations email notifications enabled", "ops_email", app.cfg.Email.OpsEmail)
	}

	svcConfig := withdrawal.Config{
		MinAmount:     app.cfg.Withdrawal.MinAmount,
		MaxAmount:     app.cfg.Withdrawal.MaxAmount,
		FeePercentage: app.cfg.Withdrawal.FeePercentage,
		Currency:      app.cfg.Withdrawal.Currency,
	}

	service := withdrawal.NewService(
		withdrawalRepo,
		balanceRepo,
		adapters.NewFanoutNotifier(notifiers...),
		svcConfig,
		app.log,
	)
	service.SetEventStream(eventStream)
	return service, balanceRepo, nil
}

// initializeTracing initializes OpenTelemetry tracing
func (app *Application) initializeTracing() error {
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      app.cfg.Tracing.Enabled,
		CollectorURL: app.cfg.Tracing.CollectorURL,
		Environment:  app.cfg.Environment,
		SampleRate:   app.cfg.Tracing.SampleRate,
	}, app.log.Zap())
	if err != nil {
		return err
	}
	app.tracingShutdown = tracingShutdown
	return nil
}

// initializeWorkers initializes background workers
func (app *Application) initializeWorkers(service *withdrawal.Service) error {
	if !app.cfg.Sweep.Enabled {
		return nil
	}

	var notifier withdrawal_sweep.Notifier
	if app.cfg.Email.Enabled {
		emailNotifier, err := adapters.NewEmailNotifier(app.cfg.Email, app.log)
		if err != nil {
			return fmt.Errorf("failed to create sweep notifier: %w", err)
		}
		notifier = emailNotifier
	}

	app.sweepWorker = withdrawal_sweep.NewWorker(service, notifier, app.cfg.Sweep, app.log)
	if err := app.sweepWorker.Start(); err != nil {
		return err
	}
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer(service *withdrawal.Service, ledger *repositories.BalanceRepository) {
	if app.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.SetupRoutes(
		app.cfg,
		app.log,
		wallet.NewWithdrawalHandlers(service, app.log),
		wallet.NewAdminWithdrawalHandlers(service, app.log),
		wallet.NewWalletHandlers(ledger, app.log),
	)

	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    app.cfg.Server.ReadTimeout,
		WriteTimeout:   app.cfg.Server.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// Start starts the application
func (app *Application) Start() error {
	go func() {
		app.log.Info("Starting server",
			"addr", app.server.Addr,
			"environment", app.cfg.Environment)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("Failed to start server", "error", err)
		}
	}()

	go app.startMetricsCollection()
	return nil
}

// startMetricsCollection keeps the database pool gauges current
func (app *Application) startMetricsCollection() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := app.db.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	}
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.log.Info("Shutting down server...")

	if app.sweepWorker != nil {
		app.sweepWorker.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.log.Error("Server forced to shutdown", "error", err)
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Warn("Error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.log.Warn("Error closing database", "error", err)
		}
	}
	if app.tracingShutdown != nil {
		_ = app.tracingShutdown(context.Background())
	}

	app.log.Info("Server exited gracefully")
	return nil
}

// WaitForShutdown waits for interrupt signal
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
