package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/jobwatch/internal/websocket"
	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
	"github.com/frostdev-ops/jobwatch/pkg/utils"
)

// WebSocketHandler handles WebSocket connections
func (h *Handlers) WebSocketHandler(hub *websocket.Hub) gin.HandlerFunc {
	return websocket.HandleWebSocketGin(hub)
}

// GetWebSocketStats returns hub statistics
func (h *Handlers) GetWebSocketStats(c *gin.Context) {
	if h.wsHub == nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrUnavailable, "websocket streaming is disabled"))
		return
	}
	utils.SendSuccess(c, h.wsHub.GetStats())
}
