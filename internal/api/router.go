package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/jobwatch/internal/api/handlers"
	"github.com/frostdev-ops/jobwatch/internal/api/middleware"
	"github.com/frostdev-ops/jobwatch/internal/config"
	"github.com/frostdev-ops/jobwatch/internal/core/metrics"
	"github.com/frostdev-ops/jobwatch/internal/websocket"
	"github.com/frostdev-ops/jobwatch/pkg/logger"
	"github.com/frostdev-ops/jobwatch/pkg/utils"
)

// Dependencies are the services the router exposes
type Dependencies struct {
	Handlers *handlers.Handlers
	Hub      *websocket.Hub
	Metrics  metrics.MetricsCollector
	Logger   *logger.BatchLogger
}

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	// Set gin mode based on config
	switch cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(deps.Logger.Logger))
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	// Rate limiting
	rateLimiter := middleware.NewRateLimiter(100, 200) // 100 requests/sec, burst 200
	router.Use(rateLimiter.RateLimitMiddleware())

	router.NoRoute(func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "Endpoint not found")
	})

	h := deps.Handlers

	// Public routes
	router.GET("/health", h.Health)
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	// WebSocket endpoint (no auth required for connection)
	if deps.Hub != nil {
		router.GET("/ws", h.WebSocketHandler(deps.Hub))
	}

	// API v1 routes
	api := router.Group("/api/v1")
	{
		// Read-only routes
		api.GET("/alerts", h.GetAlerts)
		api.GET("/alerts/highest", h.GetHighestAlert)
		api.GET("/alerts/stats", h.GetAlertStats)
		api.GET("/alerts/history", h.GetAlertHistory)
		api.GET("/alerts/:id", h.GetAlert)
		api.GET("/rules", h.GetRules)
		api.GET("/cycles/last", h.GetLastCycle)
		api.GET("/websocket/stats", h.GetWebSocketStats)

		// Mutating routes (auth required when enabled)
		protected := api.Group("/")
		if cfg.Auth.Enabled {
			protected.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
		} else {
			protected.Use(middleware.AnonymousActorMiddleware())
		}
		{
			protected.POST("/alerts/bulk/acknowledge", h.BulkAcknowledge)
			protected.POST("/alerts/bulk/dismiss", h.BulkDismiss)
			protected.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
			protected.POST("/alerts/:id/dismiss", h.DismissAlert)
			protected.POST("/cycles/run", h.RunCycle)
		}
	}

	return router
}
