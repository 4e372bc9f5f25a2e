package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
	"github.com/frostdev-ops/jobwatch/internal/core/metrics"
	"github.com/frostdev-ops/jobwatch/internal/core/poller"
	"github.com/frostdev-ops/jobwatch/internal/database/repositories"
	"github.com/frostdev-ops/jobwatch/internal/websocket"
	apperrors "github.com/frostdev-ops/jobwatch/pkg/errors"
)

// CycleRunner triggers and reports reconciliation cycles
type CycleRunner interface {
	RunOnce(ctx context.Context) (alerts.CycleSummary, error)
	Status() poller.Status
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	engine *alerts.Engine
	log    *logrus.Logger

	runner CycleRunner
	events repositories.AlertEventRepository
	health *metrics.HealthChecker
	wsHub  *websocket.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(engine *alerts.Engine, logger *logrus.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		log:    logger,
	}
}

// SetCycleRunner enables the cycle trigger and poller status endpoints
func (h *Handlers) SetCycleRunner(runner CycleRunner) {
	h.runner = runner
}

// SetEventRepository enables persisted history queries
func (h *Handlers) SetEventRepository(repo repositories.AlertEventRepository) {
	h.events = repo
}

// SetHealthChecker sets the component health checker
func (h *Handlers) SetHealthChecker(checker *metrics.HealthChecker) {
	h.health = checker
}

// SetWebSocketHub sets the hub reported by the websocket stats endpoint
func (h *Handlers) SetWebSocketHub(hub *websocket.Hub) {
	h.wsHub = hub
}

func parseLimit(raw string, fallback, max int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.WithDetails(apperrors.ErrBadRequest, "limit must be a non-negative integer")
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

// splitList accepts both repeated and comma separated query values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
