package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/jobwatch/pkg/utils"
	"github.com/frostdev-ops/jobwatch/pkg/version"
)

// Health returns the health status of the service. Unhealthy components
// turn the response into a 503 so load balancers can act on it.
func (h *Handlers) Health(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"build":     version.Get(),
	}

	stats := h.engine.Statistics()
	health["alerts"] = gin.H{
		"active":       stats.Active,
		"acknowledged": stats.Acknowledged,
		"cycles":       stats.Cycles,
	}

	if h.runner != nil {
		health["poller"] = h.runner.Status()
	}

	if h.health != nil {
		report := h.health.Check(c.Request.Context())
		health["status"] = report.Status
		health["message"] = report.Message
		health["components"] = report.Components
		health["system"] = report.SystemInfo

		if report.Status == "unhealthy" {
			c.JSON(http.StatusServiceUnavailable, utils.Response{
				Success:   false,
				Data:      health,
				Error:     report.Message,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}

	utils.SendSuccess(c, health)
}
