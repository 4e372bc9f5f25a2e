package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/jobwatch/internal/api/middleware"
	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
	"github.com/frostdev-ops/jobwatch/internal/database/models"
	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
	"github.com/frostdev-ops/jobwatch/pkg/utils"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// BulkRequest is the body of the bulk lifecycle endpoints
type BulkRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// GetAlerts lists active alerts, highest priority first
func (h *Handlers) GetAlerts(c *gin.Context) {
	filter, err := alertFilterFromQuery(c)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	active := h.engine.Active(filter)
	utils.SendSuccessWithMeta(c, active, gin.H{"count": len(active)})
}

func alertFilterFromQuery(c *gin.Context) (alerts.Filter, error) {
	var filter alerts.Filter

	for _, raw := range splitList(c.QueryArray("severity")) {
		sev, err := alerts.ParseSeverity(raw)
		if err != nil {
			return filter, apperrors.WithDetails(apperrors.ErrBadRequest, err.Error())
		}
		filter.Severities = append(filter.Severities, sev)
	}
	filter.RuleIDs = splitList(c.QueryArray("rule"))
	filter.JobID = c.Query("job")

	if raw := c.Query("acknowledged"); raw != "" {
		ack, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.WithDetails(apperrors.ErrBadRequest, "acknowledged must be true or false")
		}
		filter.Acknowledged = &ack
	}

	limit, err := parseLimit(c.Query("limit"), 0, 0)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

// GetHighestAlert returns the single highest priority active alert
func (h *Handlers) GetHighestAlert(c *gin.Context) {
	alert, ok := h.engine.Highest()
	if !ok {
		utils.SendSuccess(c, gin.H{"alert": nil})
		return
	}
	utils.SendSuccess(c, gin.H{"alert": alert})
}

// GetAlertStats returns engine statistics
func (h *Handlers) GetAlertStats(c *gin.Context) {
	utils.SendSuccess(c, h.engine.Statistics())
}

// GetAlert returns one active alert
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")
	alert, ok := h.engine.Get(id)
	if !ok {
		utils.SendAppError(c, alertNotFound(id))
		return
	}
	utils.SendSuccess(c, alert)
}

// AcknowledgeAlert marks an alert as seen by the requesting actor
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	actor := middleware.Actor(c)

	if !h.engine.Acknowledge(id, actor) {
		utils.SendAppError(c, alertNotFound(id))
		return
	}

	alert, ok := h.engine.Get(id)
	if !ok {
		// Resolved by a cycle between the two calls
		utils.SendSuccess(c, gin.H{"id": id, "acknowledged": true})
		return
	}
	utils.SendSuccess(c, alert)
}

// DismissAlert removes an active alert
func (h *Handlers) DismissAlert(c *gin.Context) {
	id := c.Param("id")
	actor := middleware.Actor(c)

	if !h.engine.Dismiss(id, actor) {
		utils.SendAppError(c, alertNotFound(id))
		return
	}

	utils.SendSuccess(c, gin.H{"id": id, "dismissed": true})
}

// BulkAcknowledge acknowledges a batch of alerts
func (h *Handlers) BulkAcknowledge(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrBadRequest, "body must contain a non-empty ids array"))
		return
	}

	result := h.engine.BulkAcknowledge(req.IDs, middleware.Actor(c))
	utils.SendSuccess(c, result)
}

// BulkDismiss dismisses a batch of alerts
func (h *Handlers) BulkDismiss(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrBadRequest, "body must contain a non-empty ids array"))
		return
	}

	result := h.engine.BulkDismiss(req.IDs, middleware.Actor(c))
	utils.SendSuccess(c, result)
}

// GetAlertHistory returns recent lifecycle events. With source=db the
// persisted event log is queried instead of the in-memory ring.
func (h *Handlers) GetAlertHistory(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	switch c.DefaultQuery("source", "memory") {
	case "memory":
		events := h.engine.History(limit)
		utils.SendSuccessWithMeta(c, events, gin.H{"count": len(events), "source": "memory"})
	case "db":
		h.getPersistedHistory(c, limit)
	default:
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrBadRequest, "source must be memory or db"))
	}
}

func (h *Handlers) getPersistedHistory(c *gin.Context, limit int) {
	if h.events == nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrUnavailable, "alert history persistence is disabled"))
		return
	}

	offset, err := parseLimit(c.Query("offset"), 0, 0)
	if err != nil {
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrBadRequest, "offset must be a non-negative integer"))
		return
	}

	filter := models.AlertEventFilter{
		AlertID: c.Query("alert_id"),
		JobID:   c.Query("job"),
		RuleID:  c.Query("rule"),
		Action:  c.Query("action"),
		Limit:   limit,
		Offset:  offset,
	}

	events, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to query alert history")
		utils.SendAppError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	total, err := h.events.Count(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Warn("Failed to count alert history")
		total = len(events)
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	utils.SendSuccessWithMeta(c, events, gin.H{"count": len(events), "total": total, "source": "db"})
}

// GetRules lists the registered rules
func (h *Handlers) GetRules(c *gin.Context) {
	rules := h.engine.Rules()
	utils.SendSuccessWithMeta(c, rules, gin.H{"count": len(rules)})
}

func alertNotFound(id string) error {
	return apperrors.Wrap(apperrors.New(http.StatusNotFound, "Alert not found"), fmt.Errorf("%w: %s", alerts.ErrAlertNotFound, id))
}
