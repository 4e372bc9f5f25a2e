package repositories

import (
	"context"
	"time"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
	"github.com/frostdev-ops/jobwatch/internal/database/models"
)

// AlertEventRepository stores the durable alert audit trail. It is also an
// alerts.Sink so the dispatcher can write to it directly.
type AlertEventRepository interface {
	alerts.Sink
	List(ctx context.Context, filter models.AlertEventFilter) ([]*models.AlertEvent, error)
	Count(ctx context.Context, filter models.AlertEventFilter) (int, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
