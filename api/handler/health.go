package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports session utilisation and degrades status when more than 80% of the
// session cap is in flight.
func Health(pf PageFetcher, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := pf.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Sessions: stats,
			Version:  "0.1.0",
		})
	}
}
