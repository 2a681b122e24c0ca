package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tokscrape/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsProvider reports browser session state.
type StatsProvider interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/health.
//
// Status degrades once the session manager has been shut down.
func Health(sp StatsProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sp.Stats()

		status := "healthy"
		if stats.Closed {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			Version:      Version,
		})
	}
}
