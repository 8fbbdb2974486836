package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wardroberry/wardroberry/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint with dependency probes
	r.GET("/health", func(c *gin.Context) {
		checks := gin.H{}
		healthy := true

		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if err := deps.Queue.HealthCheck(c.Request.Context()); err != nil {
			checks["queue"] = err.Error()
			healthy = false
		} else {
			checks["queue"] = "ok"
		}

		status := http.StatusOK
		statusText := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			statusText = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":  statusText,
			"service": "garment-api-service",
			"checks":  checks,
		})
	})

	// Initialize garment handler
	garmentHandler := handler.NewGarmentHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		garments := v1.Group("/garments")
		{
			// POST /api/v1/garments - Upload a garment image for processing
			garments.POST("", garmentHandler.UploadGarment)

			// GET /api/v1/garments - List garments with filtering and pagination
			garments.GET("", garmentHandler.ListGarments)

			// GET /api/v1/garments/:garment_id - Get garment details and status
			garments.GET("/:garment_id", garmentHandler.GetGarment)

			// DELETE /api/v1/garments/:garment_id - Delete a garment
			garments.DELETE("/:garment_id", garmentHandler.DeleteGarment)
		}

		queues := v1.Group("/queue")
		{
			// GET /api/v1/queue/stats - Queue depth snapshot
			queues.GET("/stats", garmentHandler.QueueStats)

			// POST /api/v1/queue/:queue_name/clear - Empty a queue (maintenance)
			queues.POST("/:queue_name/clear", garmentHandler.ClearQueue)
		}
	}

	return r
}
