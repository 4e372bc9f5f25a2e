package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/jobwatch/internal/api/middleware"
	"github.com/frostdev-ops/jobwatch/internal/core/poller"
	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
	"github.com/frostdev-ops/jobwatch/pkg/utils"
)

// GetLastCycle returns the most recent cycle summary and poller status
func (h *Handlers) GetLastCycle(c *gin.Context) {
	response := gin.H{"cycle": nil}
	if summary, ok := h.engine.LastCycle(); ok {
		response["cycle"] = summary
	}
	if h.runner != nil {
		response["poller"] = h.runner.Status()
	}
	utils.SendSuccess(c, response)
}

// RunCycle triggers a reconciliation cycle outside the schedule
func (h *Handlers) RunCycle(c *gin.Context) {
	if h.runner == nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrUnavailable, "poller is disabled"))
		return
	}

	h.log.WithField("actor", middleware.Actor(c)).Info("Manual reconciliation cycle requested")

	summary, err := h.runner.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, poller.ErrCycleInProgress) {
			utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrConflict, err.Error()))
			return
		}
		utils.SendAppError(c, apperrors.Wrap(apperrors.New(http.StatusBadGateway, "Job source unavailable"), err))
		return
	}

	utils.SendSuccess(c, summary)
}
