package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	History   HistoryConfig   `mapstructure:"history"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Source    SourceConfig    `mapstructure:"source"`
	State     StateConfig     `mapstructure:"state"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path           string          `mapstructure:"path"`
	MigrationsPath string          `mapstructure:"migrations_path"`
	MaxConnections int             `mapstructure:"max_connections"`
	Migration      MigrationConfig `mapstructure:"migration"`
}

type MigrationConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	TokenExpiry int    `mapstructure:"token_expiry"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig tunes the alert engine
type EngineConfig struct {
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
	Workers      int           `mapstructure:"workers"`
	AbsenceGrace int           `mapstructure:"absence_grace"`
	HistorySize  int           `mapstructure:"history_size"`
	Rules        RulesConfig   `mapstructure:"rules"`
}

// RulesConfig enables, disables and tunes the built-in rules
type RulesConfig struct {
	Disabled     []string          `mapstructure:"disabled"`
	StallAfter   time.Duration     `mapstructure:"stall_after"`
	ArrivedGrace time.Duration     `mapstructure:"arrived_grace"`
	Severities   map[string]string `mapstructure:"severities"`
}

// HistoryConfig controls delivery of alert lifecycle events to sinks
type HistoryConfig struct {
	Persist     bool          `mapstructure:"persist"`
	QueueSize   int           `mapstructure:"queue_size"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	Retention   time.Duration `mapstructure:"retention"`
}

// PollerConfig contains the reconciliation schedule
type PollerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	Timezone   string        `mapstructure:"timezone"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	// LookbackDays adds that many earlier days to every fetch
	LookbackDays int `mapstructure:"lookback_days"`
}

// SourceConfig selects and configures the job record source
type SourceConfig struct {
	Type          string        `mapstructure:"type"` // "http" or "file"
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	LocationURL   string        `mapstructure:"location_url"`
	FilePath      string        `mapstructure:"file_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	Burst         int           `mapstructure:"burst"`
	// MaxResponseBytes caps how much of a single response is read
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around the job source
type BreakerConfig struct {
	MaxFailures      uint32        `mapstructure:"max_failures"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

// StateConfig configures engine snapshot persistence in Redis
type StateConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig configures the alert event publisher
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WebSocketConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PingInterval int  `mapstructure:"ping_interval"`
	PongTimeout  int  `mapstructure:"pong_timeout"`
	WriteTimeout int  `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	Path    string `mapstructure:"path"`
}

// Load reads config.yaml from ./configs or the working directory, applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations; a missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Read environment variables
	v.AutomaticEnv()

	// Override specific values from env
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Upstream bindings
	v.BindEnv("source.url", "JOBWATCH_SOURCE_URL")
	v.BindEnv("source.token", "JOBWATCH_SOURCE_TOKEN")
	v.BindEnv("state.addr", "JOBWATCH_REDIS_ADDR")
	v.BindEnv("state.password", "JOBWATCH_REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "JOBWATCH_KAFKA_BROKERS")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

var knownSeverities = map[string]bool{"CRITICAL": true, "HIGH": true, "MEDIUM": true, "LOW": true}

// Validate validates the configuration for completeness and correctness
func (c *Config) Validate() error {
	var errors []string

	// Validate server configuration
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		errors = append(errors, "server.host is required")
	}

	// Validate database configuration
	if c.Database.Path == "" {
		errors = append(errors, "database.path is required")
	}

	// Validate authentication configuration
	if c.Auth.Enabled && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "your-secret-key-here") {
		errors = append(errors, "auth.jwt_secret must be set to a secure value when enabled")
	}

	// Validate engine configuration
	if c.Engine.DedupWindow <= 0 {
		errors = append(errors, "engine.dedup_window must be greater than 0")
	}
	if c.Engine.Workers < 0 {
		errors = append(errors, "engine.workers must be non-negative")
	}
	if c.Engine.AbsenceGrace < 0 {
		errors = append(errors, "engine.absence_grace must be non-negative")
	}
	for rule, severity := range c.Engine.Rules.Severities {
		if !knownSeverities[strings.ToUpper(strings.TrimSpace(severity))] {
			errors = append(errors, fmt.Sprintf("engine.rules.severities.%s has unknown severity %q", rule, severity))
		}
	}

	// Validate poller and source configuration
	if c.Poller.Enabled {
		if c.Poller.Schedule == "" {
			errors = append(errors, "poller.schedule is required when the poller is enabled")
		}
		switch c.Source.Type {
		case "http":
			if c.Source.URL == "" {
				errors = append(errors, "source.url is required for the http source")
			}
		case "file":
			if c.Source.FilePath == "" {
				errors = append(errors, "source.file_path is required for the file source")
			}
		default:
			errors = append(errors, fmt.Sprintf("source.type must be http or file, got %q", c.Source.Type))
		}
	}
	if c.Poller.LookbackDays < 0 {
		errors = append(errors, "poller.lookback_days must be non-negative")
	}
	if c.Source.RatePerMinute < 0 {
		errors = append(errors, "source.rate_per_minute must be non-negative")
	}
	if c.Source.MaxResponseBytes < 0 {
		errors = append(errors, "source.max_response_bytes must be non-negative")
	}

	// Validate state store configuration if enabled
	if c.State.Enabled {
		if c.State.Addr == "" {
			errors = append(errors, "state.addr is required when state persistence is enabled")
		}
		if c.State.Key == "" {
			errors = append(errors, "state.key is required when state persistence is enabled")
		}
	}

	// Validate Kafka configuration if enabled
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errors = append(errors, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errors = append(errors, "kafka.topic is required when kafka is enabled")
		}
	}

	// If there are validation errors, return them
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.path", "./data/jobwatch.db")
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.migration.enabled", true)
	v.SetDefault("database.migration.auto_migrate", true)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_expiry", 3600)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Engine defaults
	v.SetDefault("engine.dedup_window", "5m")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.absence_grace", 0)
	v.SetDefault("engine.history_size", 1000)
	v.SetDefault("engine.rules.stall_after", "2h")
	v.SetDefault("engine.rules.arrived_grace", "4h")

	// History defaults
	v.SetDefault("history.persist", true)
	v.SetDefault("history.queue_size", 1024)
	v.SetDefault("history.sink_timeout", "5s")
	v.SetDefault("history.retention", "720h")

	// Poller defaults
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.schedule", "@every 1m")
	v.SetDefault("poller.timezone", "UTC")
	v.SetDefault("poller.timeout", "30s")
	v.SetDefault("poller.run_on_start", true)
	v.SetDefault("poller.lookback_days", 1)

	// Source defaults
	v.SetDefault("source.type", "http")
	v.SetDefault("source.timeout", "15s")
	v.SetDefault("source.rate_per_minute", 30)
	v.SetDefault("source.burst", 2)
	v.SetDefault("source.max_response_bytes", 8<<20)
	v.SetDefault("source.breaker.max_failures", 5)
	v.SetDefault("source.breaker.open_timeout", "1m")
	v.SetDefault("source.breaker.half_open_requests", 1)

	// State defaults
	v.SetDefault("state.enabled", false)
	v.SetDefault("state.addr", "localhost:6379")
	v.SetDefault("state.key", "jobwatch:engine:snapshot")
	v.SetDefault("state.ttl", "24h")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "jobwatch.alert-events")
	v.SetDefault("kafka.write_timeout", "10s")

	// WebSocket defaults
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.ping_interval", 30)
	v.SetDefault("websocket.pong_timeout", 60)
	v.SetDefault("websocket.write_timeout", 10)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prefix", "jobwatch")
	v.SetDefault("metrics.path", "/metrics")
}
