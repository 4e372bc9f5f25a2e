package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// PrometheusCollector implements MetricsCollector using Prometheus metrics.
// It doubles as a history sink and a poller cycle observer.
type PrometheusCollector struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket Metrics
	websocketConnections prometheus.Gauge
	websocketMessages    *prometheus.CounterVec

	// Cycle Metrics
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	jobsEvaluated  prometheus.Counter
	jobsSkipped    prometheus.Counter
	ruleErrors     prometheus.Counter
	suppressed     prometheus.Counter
	lastCycleStamp prometheus.Gauge

	// Alert Metrics
	alertEvents    *prometheus.CounterVec
	alertsCreated  *prometheus.CounterVec
	alertsResolved *prometheus.CounterVec

	// History Metrics
	sinkFailures  *prometheus.CounterVec
	droppedEvents prometheus.Counter
}

// NewPrometheusCollector creates a collector with its own registry, so
// several collectors can coexist in one process
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = &MetricsConfig{
			Enabled: true,
			Prefix:  "jobwatch",
		}
	}

	prefix := config.Prefix
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	collector := &PrometheusCollector{
		config:   config,
		registry: registry,
	}

	// Initialize HTTP metrics
	collector.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	collector.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Initialize WebSocket metrics
	collector.websocketConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of connected WebSocket clients",
		},
	)

	collector.websocketMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_websocket_messages_total",
			Help: "Total number of WebSocket messages broadcast",
		},
		[]string{"type"},
	)

	// Initialize cycle metrics
	collector.cyclesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	collector.cycleDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_cycle_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	collector.jobsEvaluated = factory.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_jobs_evaluated_total",
		Help: "Total number of jobs evaluated against the rule set",
	})
	collector.jobsSkipped = factory.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_jobs_skipped_total",
		Help: "Total number of malformed jobs skipped during evaluation",
	})
	collector.ruleErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_rule_errors_total",
		Help: "Total number of rule evaluation failures",
	})
	collector.suppressed = factory.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_alerts_suppressed_total",
		Help: "Total number of candidates suppressed by deduplication",
	})
	collector.lastCycleStamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_last_cycle_timestamp_seconds",
		Help: "Unix time of the last completed reconciliation cycle",
	})

	// Initialize alert metrics
	collector.alertEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alert_events_total",
			Help: "Total number of alert lifecycle events",
		},
		[]string{"action"},
	)

	collector.alertsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"rule", "severity"},
	)

	collector.alertsResolved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_resolved_total",
			Help: "Total number of alerts resolved automatically",
		},
		[]string{"reason"},
	)

	// Initialize history metrics
	collector.sinkFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_history_sink_failures_total",
			Help: "Total number of failed history sink writes",
		},
		[]string{"sink"},
	)

	collector.droppedEvents = factory.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_history_events_dropped_total",
		Help: "Total number of history events dropped because the queue was full",
	})

	return collector
}

// WatchEngine exports the engine's live alert counts, read at scrape time
func (p *PrometheusCollector) WatchEngine(stats StatsFunc) {
	p.registry.MustRegister(newEngineCollector(p.config.Prefix, stats))
}

// Registry returns the underlying Prometheus registry
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebSocketConnection adjusts the connected client gauge
func (p *PrometheusCollector) RecordWebSocketConnection(delta int) {
	p.websocketConnections.Add(float64(delta))
}

// RecordWebSocketMessage counts a broadcast message
func (p *PrometheusCollector) RecordWebSocketMessage(messageType string) {
	p.websocketMessages.WithLabelValues(messageType).Inc()
}

// RecordSinkFailure counts a failed history sink write
func (p *PrometheusCollector) RecordSinkFailure(sink string) {
	p.sinkFailures.WithLabelValues(sink).Inc()
}

// RecordDroppedEvent counts an event the dispatcher could not queue
func (p *PrometheusCollector) RecordDroppedEvent() {
	p.droppedEvents.Inc()
}

// ObserveCycle records a completed reconciliation cycle
func (p *PrometheusCollector) ObserveCycle(summary alerts.CycleSummary) {
	p.cyclesTotal.WithLabelValues("success").Inc()
	p.cycleDuration.Observe(summary.Duration.Seconds())
	p.jobsEvaluated.Add(float64(summary.Evaluated))
	p.jobsSkipped.Add(float64(summary.SkippedJobs))
	p.ruleErrors.Add(float64(summary.RuleErrors))
	p.suppressed.Add(float64(summary.Suppressed))
	p.lastCycleStamp.Set(float64(summary.StartedAt.Add(summary.Duration).Unix()))
}

// ObserveFetchFailure records a cycle skipped because jobs could not be fetched
func (p *PrometheusCollector) ObserveFetchFailure(err error) {
	p.cyclesTotal.WithLabelValues("fetch_failed").Inc()
}

// Name identifies the collector as a history sink
func (p *PrometheusCollector) Name() string {
	return "metrics"
}

// Record counts one alert lifecycle event
func (p *PrometheusCollector) Record(ctx context.Context, event alerts.Event) error {
	p.alertEvents.WithLabelValues(string(event.Action)).Inc()

	switch event.Action {
	case alerts.ActionCreated:
		p.alertsCreated.WithLabelValues(event.Alert.RuleID, string(event.Alert.Severity)).Inc()
	case alerts.ActionResolved:
		p.alertsResolved.WithLabelValues(string(event.Alert.ResolveReason)).Inc()
	}
	return nil
}

// engineCollector reports active alert gauges from the engine's statistics
type engineCollector struct {
	stats        StatsFunc
	active       *prometheus.Desc
	acknowledged *prometheus.Desc
	dedupEntries *prometheus.Desc
}

func newEngineCollector(prefix string, stats StatsFunc) *engineCollector {
	return &engineCollector{
		stats: stats,
		active: prometheus.NewDesc(
			prefix+"_alerts_active",
			"Number of active alerts by severity",
			[]string{"severity"}, nil,
		),
		acknowledged: prometheus.NewDesc(
			prefix+"_alerts_acknowledged",
			"Number of active alerts that have been acknowledged",
			nil, nil,
		),
		dedupEntries: prometheus.NewDesc(
			prefix+"_dedup_entries",
			"Number of fingerprints held by the deduplication window",
			nil, nil,
		),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.acknowledged
	ch <- c.dedupEntries
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.stats()
	for _, sev := range alerts.Severities {
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.BySeverity[sev]), string(sev))
	}
	ch <- prometheus.MustNewConstMetric(c.acknowledged, prometheus.GaugeValue, float64(stats.Acknowledged))
	ch <- prometheus.MustNewConstMetric(c.dedupEntries, prometheus.GaugeValue, float64(stats.DedupEntries))
}
