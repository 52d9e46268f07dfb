package http

import (
	"github.com/gin-gonic/gin"
	"github.com/shelfscan/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		retailers := v1.Group("/retailers/:retailer")
		{
			retailers.GET("/progress", handler.GetProgress)
			retailers.GET("/catalogue", handler.GetCatalogue)
		}
	}

	return router
}
