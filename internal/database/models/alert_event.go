package models

import "time"

// AlertEvent is one persisted alert lifecycle transition
type AlertEvent struct {
	ID         string    `json:"id" db:"id"`
	Action     string    `json:"action" db:"action"`
	Actor      string    `json:"actor,omitempty" db:"actor"`
	AlertID    string    `json:"alert_id" db:"alert_id"`
	RuleID     string    `json:"rule_id" db:"rule_id"`
	JobID      string    `json:"job_id" db:"job_id"`
	Severity   string    `json:"severity" db:"severity"`
	Message    string    `json:"message" db:"message"`
	Payload    string    `json:"-" db:"payload"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AlertEventFilter narrows an event history query. Zero fields match all.
type AlertEventFilter struct {
	AlertID string
	JobID   string
	RuleID  string
	Action  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}
