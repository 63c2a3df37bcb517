package api

import (
	"log/slog"
	"nosleep/internal/api/handlers"
	"nosleep/internal/api/middleware"
	"nosleep/internal/lockctl"
	"nosleep/internal/logging"
	"nosleep/internal/storage"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Controller lockctl.Service
	Journal    storage.Journal    // Optional: events endpoint only registered when set
	DebugLog   *logging.DebugLog // Optional: logs endpoints only registered when set
	APIKey     string
	Version    string
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Version)
	router.GET("/health", middleware.Quiet(), healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKey(config.APIKey))
	{
		controlHandler := handlers.NewControlHandler(config.Controller, config.Logger)
		v1.GET("/state", middleware.Quiet(), controlHandler.GetState)
		v1.POST("/schedule", controlHandler.Schedule)
		v1.DELETE("/schedule", controlHandler.CancelSchedule)
		v1.POST("/lock", controlHandler.LockNow)
		v1.POST("/permissions/admin/request", controlHandler.RequestAdmin)
		v1.POST("/permissions/overlay/request", controlHandler.RequestOverlay)

		if config.DebugLog != nil {
			logsHandler := handlers.NewLogsHandler(config.DebugLog)
			v1.GET("/logs", middleware.Quiet(), logsHandler.GetLogs)
			v1.DELETE("/logs", logsHandler.ClearLogs)
		}

		if config.Journal != nil {
			eventsHandler := handlers.NewEventsHandler(config.Journal, config.Logger)
			v1.GET("/events", eventsHandler.ListEvents)
		}
	}

	return router
}
