package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/database"
	"github.com/pipemetric/insights-api/internal/http/handler"
	"github.com/pipemetric/insights-api/internal/http/middleware"
	"github.com/pipemetric/insights-api/internal/warehouse"
)

type Router struct {
	cfg             *config.Config
	logger          *zap.Logger
	db              *gorm.DB
	warehouseClient *warehouse.Client
	rateLimiter     *middleware.RateLimiter
	insightsHandler *handler.InsightsHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	warehouseClient *warehouse.Client,
	rateLimiter *middleware.RateLimiter,
	insightsHandler *handler.InsightsHandler,
) *Router {
	return &Router{
		cfg:             cfg,
		logger:          logger,
		db:              db,
		warehouseClient: warehouseClient,
		rateLimiter:     rateLimiter,
		insightsHandler: insightsHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Health check (basic liveness probe)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Database health check (readiness probe with detailed stats)
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.HealthCheckWithStats(rt.db)
		if err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"service": "database",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"service": "database",
			"stats": map[string]interface{}{
				"max_open_connections": stats.MaxOpenConnections,
				"open_connections":     stats.OpenConnections,
				"in_use":               stats.InUse,
				"idle":                 stats.Idle,
				"wait_count":           stats.WaitCount,
				"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
				"max_idle_closed":      stats.MaxIdleClosed,
				"max_lifetime_closed":  stats.MaxLifetimeClosed,
			},
		})
	})

	// Combined readiness check (checks all dependencies)
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]interface{})
		allHealthy := true

		// Check database
		if err := database.HealthCheck(rt.db); err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			checks["database"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			allHealthy = false
		} else {
			checks["database"] = map[string]interface{}{
				"status": "healthy",
			}
		}

		// Check warehouse (optional dependency, reported but never fails readiness)
		if rt.warehouseClient.IsEnabled() {
			checks["warehouse"] = rt.warehouseClient.HealthCheck(r.Context())
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "healthy",
				"checks": checks,
			})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"checks": checks,
			})
		}
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Refresh
		r.Route("/refresh", func(r chi.Router) {
			r.Post("/upload", rt.insightsHandler.RefreshUpload)
			r.Post("/records", rt.insightsHandler.RefreshRecords)
			r.Post("/warehouse", rt.insightsHandler.RefreshWarehouse)
		})
		r.Get("/refreshes", rt.insightsHandler.History)
		r.Get("/refreshes/latest", rt.insightsHandler.LatestRefresh)

		// Deals
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", rt.insightsHandler.ListDeals)
			r.Get("/top-open", rt.insightsHandler.TopOpenDeals)
			r.Get("/closing-soon", rt.insightsHandler.ClosingSoon)
			r.Get("/contract-sent", rt.insightsHandler.ContractSent)
		})

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", rt.insightsHandler.Summary)
			r.Get("/funnel", rt.insightsHandler.Funnel)
			r.Get("/transitions", rt.insightsHandler.Transitions)
			r.Get("/stale", rt.insightsHandler.StaleDeals)
			r.Route("/leaderboards", func(r chi.Router) {
				r.Get("/ae", rt.insightsHandler.AELeaderboard)
				r.Get("/bdr", rt.insightsHandler.BDRLeaderboard)
			})
		})
	})

	return r
}
