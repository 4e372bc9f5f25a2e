package metrics

import (
	"net/http"
	"time"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	alerts.Sink
	ObserveCycle(summary alerts.CycleSummary)
	ObserveFetchFailure(err error)
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
	RecordWebSocketConnection(delta int)
	RecordWebSocketMessage(messageType string)
	RecordSinkFailure(sink string)
	RecordDroppedEvent()
	Handler() http.Handler
}

// MetricsConfig contains configuration for metrics collection
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}

// StatsFunc reads the engine statistics at scrape time
type StatsFunc func() alerts.Statistics
