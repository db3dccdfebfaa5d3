package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/database"
	"github.com/pipemetric/insights-api/internal/http/handler"
	"github.com/pipemetric/insights-api/internal/http/middleware"
	"github.com/pipemetric/insights-api/internal/http/router"
	"github.com/pipemetric/insights-api/internal/jobs"
	"github.com/pipemetric/insights-api/internal/logger"
	"github.com/pipemetric/insights-api/internal/pipeline"
	"github.com/pipemetric/insights-api/internal/report"
	"github.com/pipemetric/insights-api/internal/repository"
	"github.com/pipemetric/insights-api/internal/service"
	"github.com/pipemetric/insights-api/internal/warehouse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.Int("port", cfg.App.Port),
	)

	// Connect to database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize warehouse connection (optional - the app continues without it)
	var whClient *warehouse.Client
	if cfg.Warehouse.Enabled {
		whClient, err = warehouse.NewClient(&cfg.Warehouse, log)
		if err != nil {
			log.Warn("Warehouse connection failed, continuing without it",
				zap.Error(err),
			)
		} else if whClient != nil {
			log.Info("Warehouse connected successfully",
				zap.Int("max_open_conns", cfg.Warehouse.MaxOpenConns),
				zap.Int("query_timeout_seconds", cfg.Warehouse.QueryTimeout),
			)
		}
	} else {
		log.Info("Warehouse not configured, skipping",
			zap.Bool("enabled", cfg.Warehouse.Enabled),
		)
	}

	// Build the normalization pipeline and aggregator
	p, err := pipeline.New(cfg.Pipeline, log)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	aggregator := report.NewAggregator(cfg.Pipeline, p.Classifier())

	// Initialize repositories and services
	refreshRepo := repository.NewRefreshRepository(db)
	insightsService := service.NewInsightsService(p, aggregator, whClient, refreshRepo, log)

	// Initialize middleware and handlers
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	insightsHandler := handler.NewInsightsHandler(insightsService, cfg.Server.MaxUploadSizeMB, log)

	// Setup router
	rt := router.NewRouter(
		cfg,
		log,
		db,
		whClient,
		rateLimiter,
		insightsHandler,
	)

	// Initialize and start scheduler for background jobs
	var scheduler *jobs.Scheduler
	if whClient.IsEnabled() && cfg.Jobs.WarehouseRefreshCron != "" {
		scheduler = jobs.NewScheduler(log)

		refreshJob := jobs.NewWarehouseRefreshJob(insightsService, log, jobs.DefaultRefreshTimeout)
		if err := scheduler.AddJob(jobs.WarehouseRefreshJobName, cfg.Jobs.WarehouseRefreshCron, refreshJob.Run); err != nil {
			log.Error("Failed to register warehouse refresh job", zap.Error(err))
		} else {
			scheduler.Start()
			log.Info("Scheduler started with warehouse refresh job",
				zap.String("cron_expr", cfg.Jobs.WarehouseRefreshCron),
			)
		}
	} else {
		log.Info("Periodic warehouse refresh disabled",
			zap.Bool("warehouse_enabled", whClient.IsEnabled()),
			zap.String("cron_expr", cfg.Jobs.WarehouseRefreshCron),
		)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Stop scheduler if running
		if scheduler != nil {
			ctx := scheduler.Stop()
			<-ctx.Done()
			log.Info("Scheduler stopped")
		}

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		// Close warehouse connection if initialized
		if whClient != nil {
			if err := whClient.Close(); err != nil {
				log.Warn("Error closing warehouse connection", zap.Error(err))
			}
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
