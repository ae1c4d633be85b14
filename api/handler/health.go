package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagerender/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when every render slot is busy.
func Health(rd Renderer, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := rd.Stats()

		status := "healthy"
		if stats.MaxConcurrent > 0 && stats.Active >= stats.MaxConcurrent {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status: status,
			Uptime: time.Since(startTime).Round(time.Second).String(),
			RenderStats: models.RenderStats{
				MaxConcurrent: stats.MaxConcurrent,
				Active:        stats.Active,
				Completed:     stats.Completed,
				Failed:        stats.Failed,
			},
			Version: Version,
		})
	}
}
