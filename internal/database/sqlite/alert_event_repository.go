package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
	"github.com/frostdev-ops/jobwatch/internal/database/models"
)

// AlertEventRepository persists alert lifecycle events in SQLite
type AlertEventRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewAlertEventRepository(db *sqlx.DB, log *logrus.Logger) *AlertEventRepository {
	return &AlertEventRepository{
		db:  db,
		log: log,
	}
}

// Name identifies the repository as a history sink
func (r *AlertEventRepository) Name() string {
	return "sqlite"
}

// Record inserts an event. Redelivered events with a known id are ignored.
func (r *AlertEventRepository) Record(ctx context.Context, event alerts.Event) error {
	payload, err := json.Marshal(event.Alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	query := `INSERT OR IGNORE INTO alert_events
			  (id, action, actor, alert_id, rule_id, job_id, severity, message, payload, occurred_at)
			  VALUES (:id, :action, :actor, :alert_id, :rule_id, :job_id, :severity, :message, :payload, :occurred_at)`

	row := &models.AlertEvent{
		ID:         event.ID,
		Action:     string(event.Action),
		Actor:      event.Actor,
		AlertID:    event.Alert.ID,
		RuleID:     event.Alert.RuleID,
		JobID:      event.Alert.JobID,
		Severity:   string(event.Alert.Severity),
		Message:    event.Alert.Message,
		Payload:    string(payload),
		OccurredAt: event.Timestamp.UTC(),
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"alert_id": event.Alert.ID,
		}).Error("Failed to record alert event")
		return fmt.Errorf("failed to record alert event: %w", err)
	}

	return nil
}

// List returns events matching filter, newest first
func (r *AlertEventRepository) List(ctx context.Context, filter models.AlertEventFilter) ([]*models.AlertEvent, error) {
	where, args := buildEventWhere(filter)
	query := `SELECT id, action, actor, alert_id, rule_id, job_id, severity, message, payload,
			  occurred_at, created_at FROM alert_events` + where + ` ORDER BY occurred_at DESC, rowid DESC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	events := []*models.AlertEvent{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alert events")
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching filter, ignoring paging
func (r *AlertEventRepository) Count(ctx context.Context, filter models.AlertEventFilter) (int, error) {
	where, args := buildEventWhere(filter)

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM alert_events"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count alert events: %w", err)
	}
	return count, nil
}

// PurgeBefore deletes events that occurred before cutoff
func (r *AlertEventRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_events WHERE occurred_at < ?", cutoff.UTC())
	if err != nil {
		r.log.WithError(err).Error("Failed to purge alert events")
		return 0, fmt.Errorf("failed to purge alert events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows > 0 {
		r.log.WithFields(logrus.Fields{
			"deleted": rows,
			"cutoff":  cutoff,
		}).Info("Purged expired alert events")
	}

	return rows, nil
}

func buildEventWhere(filter models.AlertEventFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.AlertID != "" {
		conditions = append(conditions, "alert_id = ?")
		args = append(args, filter.AlertID)
	}
	if filter.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.RuleID != "" {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Since != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, filter.Until.UTC())
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
