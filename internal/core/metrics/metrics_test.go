package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

func TestPrometheusCollector_RecordsEvents(t *testing.T) {
	c := NewPrometheusCollector(nil)

	created := alerts.Event{Action: alerts.ActionCreated, Alert: alerts.Alert{RuleID: "no-tracking", Severity: alerts.SeverityLow}}
	resolved := alerts.Event{Action: alerts.ActionResolved, Alert: alerts.Alert{ResolveReason: alerts.ResolveJobAbsent}}

	require.NoError(t, c.Record(context.Background(), created))
	require.NoError(t, c.Record(context.Background(), created))
	require.NoError(t, c.Record(context.Background(), resolved))

	assert.Equal(t, float64(2), testutil.ToFloat64(c.alertEvents.WithLabelValues("created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.alertsCreated.WithLabelValues("no-tracking", "LOW")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.alertsResolved.WithLabelValues("job_absent")))
	assert.Equal(t, "metrics", c.Name())
}

func TestPrometheusCollector_ObservesCycles(t *testing.T) {
	c := NewPrometheusCollector(&MetricsConfig{Enabled: true, Prefix: "test"})

	c.ObserveCycle(alerts.CycleSummary{
		Evaluated:   12,
		SkippedJobs: 1,
		RuleErrors:  2,
		Suppressed:  3,
		StartedAt:   time.Unix(1773151200, 0),
		Duration:    40 * time.Millisecond,
	})
	c.ObserveFetchFailure(errors.New("timeout"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.cyclesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cyclesTotal.WithLabelValues("fetch_failed")))
	assert.Equal(t, float64(12), testutil.ToFloat64(c.jobsEvaluated))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.ruleErrors))
	assert.Equal(t, float64(1773151200), testutil.ToFloat64(c.lastCycleStamp))
}

func TestPrometheusCollector_SinkFailuresAndDrops(t *testing.T) {
	c := NewPrometheusCollector(nil)

	c.RecordSinkFailure("kafka")
	c.RecordSinkFailure("kafka")
	c.RecordDroppedEvent()
	c.RecordWebSocketConnection(2)
	c.RecordWebSocketConnection(-1)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.sinkFailures.WithLabelValues("kafka")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.droppedEvents))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.websocketConnections))
}

func TestPrometheusCollector_WatchEngineAndHandler(t *testing.T) {
	c := NewPrometheusCollector(nil)
	c.WatchEngine(func() alerts.Statistics {
		return alerts.Statistics{
			Acknowledged: 1,
			BySeverity:   map[alerts.Severity]int{alerts.SeverityCritical: 2, alerts.SeverityLow: 1},
			DedupEntries: 5,
		}
	})
	c.RecordHTTPRequest("GET", "/api/v1/alerts", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `jobwatch_alerts_active{severity="CRITICAL"} 2`)
	assert.Contains(t, text, `jobwatch_alerts_active{severity="HIGH"} 0`)
	assert.Contains(t, text, "jobwatch_dedup_entries 5")
	assert.Contains(t, text, `jobwatch_http_requests_total{method="GET",path="/api/v1/alerts",status="200"} 1`)
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker(50 * time.Millisecond)

	report := h.Check(context.Background())
	assert.Equal(t, "healthy", report.Status)

	h.Register("database", func(ctx context.Context) HealthStatus {
		return NewHealthStatus("healthy", "ok")
	})
	h.Register("source", func(ctx context.Context) HealthStatus {
		return NewHealthStatus("degraded", "circuit half-open")
	})
	assert.Equal(t, []string{"database", "source"}, h.Components())

	report = h.Check(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "1/2 components degraded", report.Message)

	h.Register("redis", func(ctx context.Context) HealthStatus {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return NewHealthStatus("healthy", "late")
	})

	report = h.Check(context.Background())
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "Health check timed out", report.Components["redis"].Message)
	assert.True(t, report.Components["database"].IsHealthy())
}
