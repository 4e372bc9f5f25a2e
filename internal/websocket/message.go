package websocket

import (
	"encoding/json"
	"time"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// Message types for WebSocket communication
const (
	MessageTypeAlertCreated      = "alert_created"
	MessageTypeAlertAcknowledged = "alert_acknowledged"
	MessageTypeAlertDismissed    = "alert_dismissed"
	MessageTypeAlertResolved     = "alert_resolved"
	MessageTypeCycleSummary      = "cycle_summary"
	MessageTypeSourceError       = "source_error"

	// Connection management
	MessageTypeConnection         = "connection"
	MessageTypeHeartbeat          = "heartbeat"
	MessageTypePong               = "pong"
	MessageTypeSubscriptionUpdate = "subscription_update"
	MessageTypeError              = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes, stamping it if unset
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, _ := json.Marshal(m)
	return data
}

// clientRequest is a message sent by a browser client
type clientRequest struct {
	Type string `json:"type"`
	Data struct {
		Severities []string `json:"severities"`
	} `json:"data"`
}

var actionMessageTypes = map[alerts.Action]string{
	alerts.ActionCreated:      MessageTypeAlertCreated,
	alerts.ActionAcknowledged: MessageTypeAlertAcknowledged,
	alerts.ActionDismissed:    MessageTypeAlertDismissed,
	alerts.ActionResolved:     MessageTypeAlertResolved,
}

// AlertEventMessage creates a message for an alert lifecycle event
func AlertEventMessage(event alerts.Event) Message {
	msgType, ok := actionMessageTypes[event.Action]
	if !ok {
		msgType = "alert_" + string(event.Action)
	}

	data := map[string]interface{}{
		"event_id": event.ID,
		"alert":    event.Alert,
	}
	if event.Actor != "" {
		data["actor"] = event.Actor
	}

	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: event.Timestamp.UTC(),
	}
}

// CycleSummaryMessage creates a message for a completed reconciliation cycle.
// Alert bodies are left out; clients receive those as individual events.
func CycleSummaryMessage(summary alerts.CycleSummary) Message {
	bySeverity := make(map[string]int, len(summary.BySeverity))
	for sev, n := range summary.BySeverity {
		bySeverity[string(sev)] = n
	}

	return Message{
		Type: MessageTypeCycleSummary,
		Data: map[string]interface{}{
			"total":        summary.Total,
			"new":          summary.New,
			"resolved":     summary.Resolved,
			"by_severity":  bySeverity,
			"evaluated":    summary.Evaluated,
			"skipped_jobs": summary.SkippedJobs,
			"rule_errors":  summary.RuleErrors,
			"duration_ms":  summary.Duration.Milliseconds(),
		},
		Timestamp: summary.StartedAt.UTC(),
	}
}

// SourceErrorMessage tells clients the last cycle could not fetch jobs
func SourceErrorMessage(err error) Message {
	return Message{
		Type: MessageTypeSourceError,
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	}
}
