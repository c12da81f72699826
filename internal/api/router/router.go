package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grump-ai/grump-engine/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grump-engine",
		})
	})

	generationHandler := handler.NewGenerationHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		generations := v1.Group("/generations")
		{
			// POST /api/v1/generations - Enqueue a new generation job
			generations.POST("", generationHandler.CreateGeneration)

			// GET /api/v1/generations - List recent generation jobs
			generations.GET("", generationHandler.ListGenerations)

			// GET /api/v1/generations/:job_id - Get generation job details
			generations.GET("/:job_id", generationHandler.GetGeneration)
		}

		sandboxRuns := v1.Group("/sandbox-runs")
		{
			// POST /api/v1/sandbox-runs - Enqueue a sandbox test job
			sandboxRuns.POST("", generationHandler.CreateSandboxRun)

			// GET /api/v1/sandbox-runs/:job_id - Get sandbox job details
			sandboxRuns.GET("/:job_id", generationHandler.GetSandboxRun)
		}
	}

	return r
}
