package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

func TestAlertEventMessage(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.FixedZone("CST", -6*3600))

	tests := []struct {
		action   alerts.Action
		expected string
	}{
		{alerts.ActionCreated, MessageTypeAlertCreated},
		{alerts.ActionAcknowledged, MessageTypeAlertAcknowledged},
		{alerts.ActionDismissed, MessageTypeAlertDismissed},
		{alerts.ActionResolved, MessageTypeAlertResolved},
		{alerts.Action("escalated"), "alert_escalated"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			msg := AlertEventMessage(alerts.Event{
				ID:        "evt-1",
				Action:    tt.action,
				Actor:     "dispatcher",
				Alert:     alerts.Alert{ID: "missing-truck-assignment-356001", Severity: alerts.SeverityHigh},
				Timestamp: at,
			})

			assert.Equal(t, tt.expected, msg.Type)
			assert.Equal(t, "evt-1", msg.Data["event_id"])
			assert.Equal(t, "dispatcher", msg.Data["actor"])
			assert.Equal(t, time.UTC, msg.Timestamp.Location())
			assert.True(t, msg.Timestamp.Equal(at))
		})
	}
}

func TestAlertEventMessage_OmitsEmptyActor(t *testing.T) {
	msg := AlertEventMessage(alerts.Event{ID: "evt-2", Action: alerts.ActionResolved})
	assert.NotContains(t, msg.Data, "actor")
}

func TestCycleSummaryMessage(t *testing.T) {
	started := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	msg := CycleSummaryMessage(alerts.CycleSummary{
		Total:      3,
		New:        1,
		Resolved:   2,
		BySeverity: map[alerts.Severity]int{alerts.SeverityCritical: 1, alerts.SeverityLow: 2},
		NewAlerts:  []alerts.Alert{{ID: "a"}},
		Evaluated:  12,
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
	})

	var decoded struct {
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data"`
		Timestamp time.Time              `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(msg.ToJSON(), &decoded))

	assert.Equal(t, MessageTypeCycleSummary, decoded.Type)
	assert.Equal(t, float64(3), decoded.Data["total"])
	assert.Equal(t, float64(1500), decoded.Data["duration_ms"])
	assert.Equal(t, map[string]interface{}{"CRITICAL": float64(1), "LOW": float64(2)}, decoded.Data["by_severity"])
	assert.NotContains(t, decoded.Data, "new_alerts")
	assert.True(t, decoded.Timestamp.Equal(started))
}

func TestToJSON_StampsMissingTimestamp(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	raw := SourceErrorMessage(errors.New("record store returned 503")).ToJSON()

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, MessageTypeSourceError, decoded.Type)
	assert.Equal(t, "record store returned 503", decoded.Data["error"])
	assert.True(t, decoded.Timestamp.After(before))
}
