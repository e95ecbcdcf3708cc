package api

import (
	"github.com/gin-gonic/gin"
	"github.com/hudsons/salespipe/internal/api/handler"
	"github.com/hudsons/salespipe/internal/api/middleware"
	"github.com/hudsons/salespipe/internal/config"
	"github.com/hudsons/salespipe/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	intakeService *service.IntakeService,
	cfg *config.Config,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	ingestHandler := handler.NewIngestHandler(intakeService)
	jobHandler := handler.NewJobHandler(intakeService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// CSV ingestion
		v1.POST("/ingest", ingestHandler.Ingest)

		// Job run polling
		v1.GET("/jobs/:id", jobHandler.GetJob)
	}

	return r
}
