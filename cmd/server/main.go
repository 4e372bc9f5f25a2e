package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/adapters/jobsource"
	"github.com/frostdev-ops/jobwatch/internal/adapters/kafka"
	"github.com/frostdev-ops/jobwatch/internal/adapters/statestore"
	"github.com/frostdev-ops/jobwatch/internal/api"
	"github.com/frostdev-ops/jobwatch/internal/api/handlers"
	"github.com/frostdev-ops/jobwatch/internal/config"
	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
	"github.com/frostdev-ops/jobwatch/internal/core/metrics"
	"github.com/frostdev-ops/jobwatch/internal/core/poller"
	"github.com/frostdev-ops/jobwatch/internal/database"
	"github.com/frostdev-ops/jobwatch/internal/websocket"
	"github.com/frostdev-ops/jobwatch/pkg/logger"
	"github.com/frostdev-ops/jobwatch/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to ./configs/config.yaml or ./config.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.FlushPending()

	build := version.Get()
	log.WithFields(logrus.Fields{
		"version": build.Version,
		"commit":  build.GitCommit,
	}).Info("Starting jobwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.Migration.Enabled && cfg.Database.Migration.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsPath, log.Logger); err != nil {
			log.Fatal("Failed to run migrations: ", err)
		}
	}

	// Create repositories
	repos := database.NewRepositories(db, log.Logger)

	// Metrics
	collector := metrics.NewPrometheusCollector(&metrics.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Prefix:  cfg.Metrics.Prefix,
	})

	// Create WebSocket hub
	var wsHub *websocket.Hub
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(&websocket.HubConfig{
			PingInterval:   time.Duration(cfg.WebSocket.PingInterval) * time.Second,
			PongTimeout:    time.Duration(cfg.WebSocket.PongTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.WebSocket.WriteTimeout) * time.Second,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, log.Logger)
		wsHub.SetMetrics(collector)
		go wsHub.Run(ctx)
	}

	// History sinks
	sinks := []alerts.Sink{collector}
	if cfg.History.Persist {
		sinks = append(sinks, repos.AlertEvents)
	}
	if wsHub != nil {
		sinks = append(sinks, wsHub)
	}

	var kafkaSink *kafka.Sink
	if cfg.Kafka.Enabled {
		kafkaSink, err = kafka.NewSink(&cfg.Kafka, log.Logger)
		if err != nil {
			log.Fatal("Failed to create Kafka sink: ", err)
		}
		sinks = append(sinks, kafkaSink)
	}

	dispatcher := alerts.NewDispatcher(&alerts.DispatcherConfig{
		QueueSize:   cfg.History.QueueSize,
		SinkTimeout: cfg.History.SinkTimeout,
	}, log.Logger, sinks...)
	dispatcher.OnFailure(func(sink string, err error) {
		collector.RecordSinkFailure(sink)
	})
	dispatcher.OnDrop(func(event alerts.Event) {
		collector.RecordDroppedEvent()
	})
	dispatcher.Start()

	// Alert engine, judging calendar days in the poller's timezone
	timezone := loadTimezone(cfg.Poller.Timezone, log.Logger)
	engine, err := buildEngine(cfg.Engine, timezone, dispatcher, log.Logger)
	if err != nil {
		log.Fatal("Failed to create alert engine: ", err)
	}
	collector.WatchEngine(engine.Statistics)

	// Health checks
	health := metrics.NewHealthChecker(2 * time.Second)
	health.Register("database", databaseCheck(db))

	h := handlers.NewHandlers(engine, log.Logger)
	h.SetHealthChecker(health)
	if cfg.History.Persist {
		h.SetEventRepository(repos.AlertEvents)
	}
	if wsHub != nil {
		h.SetWebSocketHub(wsHub)
	}

	// Poller
	var jobPoller *poller.Poller
	var stateStore *statestore.RedisStore
	if cfg.Poller.Enabled {
		source, err := buildJobSource(cfg.Source, timezone, log.Logger)
		if err != nil {
			log.Fatal("Failed to create job source: ", err)
		}
		if httpSource, ok := source.(*jobsource.HTTPSource); ok {
			health.Register("job_source", breakerCheck(httpSource))
		}

		opts := []poller.Option{poller.WithObserver(collector)}
		if wsHub != nil {
			opts = append(opts, poller.WithObserver(wsHub))
		}

		if cfg.Source.LocationURL != "" {
			locations, err := jobsource.NewHTTPLocationSource(sourceClientConfig(cfg.Source, cfg.Source.LocationURL), log.Logger)
			if err != nil {
				log.Fatal("Failed to create location source: ", err)
			}
			opts = append(opts, poller.WithLocationSource(locations))
		}

		if cfg.State.Enabled {
			stateStore, err = statestore.NewRedisStore(&cfg.State, log.Logger)
			if err != nil {
				log.WithError(err).Warn("Engine state persistence unavailable, starting with an empty engine")
			} else {
				opts = append(opts, poller.WithStateStore(stateStore))
				health.Register("state_store", pingCheck(stateStore.Ping))
			}
		}

		jobPoller, err = poller.New(&poller.Config{
			Schedule:     cfg.Poller.Schedule,
			Timezone:     cfg.Poller.Timezone,
			Timeout:      cfg.Poller.Timeout,
			RunOnStart:   cfg.Poller.RunOnStart,
			LookbackDays: cfg.Poller.LookbackDays,
		}, engine, source, log.Logger, opts...)
		if err != nil {
			log.Fatal("Failed to create poller: ", err)
		}
		h.SetCycleRunner(jobPoller)
		health.Register("poller", pollerCheck(jobPoller))

		if err := jobPoller.Start(ctx); err != nil {
			log.Fatal("Failed to start poller: ", err)
		}
	} else {
		log.Warn("Poller disabled; alerts change only through the API")
	}

	// Retention
	var retention *database.RetentionJob
	if cfg.History.Persist && cfg.History.Retention > 0 {
		retention = database.NewRetentionJob(repos.AlertEvents, cfg.History.Retention, log.Logger)
		if err := retention.Start("@hourly"); err != nil {
			log.WithError(err).Warn("Failed to schedule alert history retention")
			retention = nil
		}
	}

	// Initialize router
	router := api.NewRouter(cfg, api.Dependencies{
		Handlers: h,
		Hub:      wsHub,
		Metrics:  collector,
		Logger:   log,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting jobwatch on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	stop()

	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	if jobPoller != nil {
		if err := jobPoller.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop poller")
		}
	}
	if retention != nil {
		retention.Stop()
	}

	// Drain queued events before closing the sinks they are delivered to
	dispatcher.Close()

	if stateStore != nil {
		if err := stateStore.Save(shutdownCtx, engine.Snapshot()); err != nil {
			log.WithError(err).Warn("Failed to persist final engine state")
		}
		stateStore.Close()
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Kafka writer")
		}
	}

	log.Info("Server exited")
}

func buildEngine(cfg config.EngineConfig, timezone *time.Location, publisher alerts.Publisher, logger *logrus.Logger) (*alerts.Engine, error) {
	severities := make(map[string]alerts.Severity, len(cfg.Rules.Severities))
	for ruleID, raw := range cfg.Rules.Severities {
		sev, err := alerts.ParseSeverity(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", ruleID, err)
		}
		severities[ruleID] = sev
	}

	registry, err := alerts.NewRegistry(alerts.BuiltinRules(alerts.BuiltinOptions{
		Disabled:     cfg.Rules.Disabled,
		StallAfter:   cfg.Rules.StallAfter,
		ArrivedGrace: cfg.Rules.ArrivedGrace,
		Severities:   severities,
	})...)
	if err != nil {
		return nil, err
	}

	logger.WithField("rules", registry.Len()).Info("Alert rules registered")

	return alerts.NewEngine(registry,
		alerts.WithClock(zonedClock{location: timezone}),
		alerts.WithLogger(logger),
		alerts.WithPublisher(publisher),
		alerts.WithDedupWindow(cfg.DedupWindow),
		alerts.WithWorkers(cfg.Workers),
		alerts.WithAbsenceGrace(cfg.AbsenceGrace),
		alerts.WithHistorySize(cfg.HistorySize),
	)
}

func buildJobSource(cfg config.SourceConfig, timezone *time.Location, logger *logrus.Logger) (poller.JobSource, error) {
	if cfg.Type == "file" {
		source, err := jobsource.NewFileSource(cfg.FilePath, timezone, logger)
		if err != nil {
			return nil, err
		}
		return source, nil
	}

	source, err := jobsource.NewHTTPSource(sourceClientConfig(cfg, cfg.URL), timezone, logger)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func sourceClientConfig(cfg config.SourceConfig, baseURL string) jobsource.ClientConfig {
	return jobsource.ClientConfig{
		BaseURL:          baseURL,
		Token:            cfg.Token,
		Timeout:          cfg.Timeout,
		RatePerMinute:    cfg.RatePerMinute,
		Burst:            cfg.Burst,
		MaxFailures:      cfg.Breaker.MaxFailures,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
		MaxRetries:       2,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}
}

// zonedClock reports the current time in a fixed location
type zonedClock struct {
	location *time.Location
}

func (c zonedClock) Now() time.Time {
	return time.Now().In(c.location)
}

func loadTimezone(name string, logger *logrus.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		logger.WithError(err).Warnf("Invalid timezone %s, using UTC", name)
		return time.UTC
	}
	return tz
}

func databaseCheck(db *sql.DB) metrics.HealthCheck {
	return pingCheck(db.PingContext)
}

func pingCheck(ping func(ctx context.Context) error) metrics.HealthCheck {
	return func(ctx context.Context) metrics.HealthStatus {
		if err := ping(ctx); err != nil {
			return metrics.NewHealthStatus("unhealthy", err.Error())
		}
		return metrics.NewHealthStatus("healthy", "reachable")
	}
}

func breakerCheck(source *jobsource.HTTPSource) metrics.HealthCheck {
	return func(ctx context.Context) metrics.HealthStatus {
		state := source.BreakerState()
		if state == "closed" {
			return metrics.NewHealthStatus("healthy", "circuit closed")
		}
		return metrics.NewHealthStatus("degraded", "circuit "+state).WithDetail("breaker", state)
	}
}

func pollerCheck(p *poller.Poller) metrics.HealthCheck {
	return func(ctx context.Context) metrics.HealthStatus {
		status := p.Status()
		if !status.Running {
			return metrics.NewHealthStatus("unhealthy", "poller stopped")
		}
		if status.LastError != "" {
			return metrics.NewHealthStatus("degraded", "last cycle failed").WithDetail("error", status.LastError)
		}
		return metrics.NewHealthStatus("healthy", "polling").WithDetail("schedule", status.Schedule)
	}
}
