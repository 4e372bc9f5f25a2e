package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
source:
  url: https://records.example.com/api
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "./data/jobwatch.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Engine.DedupWindow)
	assert.Equal(t, 2*time.Hour, cfg.Engine.Rules.StallAfter)
	assert.Equal(t, 4*time.Hour, cfg.Engine.Rules.ArrivedGrace)
	assert.Equal(t, 0, cfg.Engine.AbsenceGrace)
	assert.Equal(t, "@every 1m", cfg.Poller.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Poller.Timeout)
	assert.Equal(t, 1, cfg.Poller.LookbackDays)
	assert.Equal(t, int64(8<<20), cfg.Source.MaxResponseBytes)
	assert.Equal(t, "http", cfg.Source.Type)
	assert.Equal(t, uint32(5), cfg.Source.Breaker.MaxFailures)
	assert.Equal(t, "jobwatch.alert-events", cfg.Kafka.Topic)
	assert.Equal(t, "jobwatch", cfg.Metrics.Prefix)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
engine:
  dedup_window: 90s
  absence_grace: 2
  rules:
    disabled: [no-tracking]
    severities:
      missing-driver-assignment: critical
source:
  type: file
  file_path: ./jobs.yaml
kafka:
  enabled: true
  brokers: [kafka-1:9092, kafka-2:9092]
`)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("JOBWATCH_REDIS_ADDR", "redis.internal:6380")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Engine.DedupWindow)
	assert.Equal(t, 2, cfg.Engine.AbsenceGrace)
	assert.Equal(t, []string{"no-tracking"}, cfg.Engine.Rules.Disabled)
	assert.Equal(t, "critical", cfg.Engine.Rules.Severities["missing-driver-assignment"])
	assert.Equal(t, "file", cfg.Source.Type)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis.internal:6380", cfg.State.Addr)
}

func TestLoadFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 3001, Host: "0.0.0.0"},
			Database: DatabaseConfig{Path: "./data/jobwatch.db"},
			Engine:   EngineConfig{DedupWindow: 5 * time.Minute},
			Poller:   PollerConfig{Enabled: true, Schedule: "@every 1m"},
			Source:   SourceConfig{Type: "http", URL: "https://records.example.com"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		message string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "auth.jwt_secret"},
		{"zero dedup window", func(c *Config) { c.Engine.DedupWindow = 0 }, "engine.dedup_window"},
		{"negative grace", func(c *Config) { c.Engine.AbsenceGrace = -1 }, "engine.absence_grace"},
		{"bad severity", func(c *Config) {
			c.Engine.Rules.Severities = map[string]string{"no-tracking": "urgent"}
		}, "unknown severity"},
		{"http without url", func(c *Config) { c.Source.URL = "" }, "source.url"},
		{"unknown source", func(c *Config) { c.Source.Type = "ftp" }, "source.type"},
		{"file without path", func(c *Config) { c.Source.Type = "file" }, "source.file_path"},
		{"negative lookback", func(c *Config) { c.Poller.LookbackDays = -1 }, "poller.lookback_days"},
		{"negative response cap", func(c *Config) { c.Source.MaxResponseBytes = -1 }, "source.max_response_bytes"},
		{"poller disabled skips source", func(c *Config) {
			c.Poller.Enabled = false
			c.Source.URL = ""
		}, ""},
		{"state without key", func(c *Config) {
			c.State = StateConfig{Enabled: true, Addr: "localhost:6379"}
		}, "state.key"},
		{"kafka without brokers", func(c *Config) {
			c.Kafka = KafkaConfig{Enabled: true, Topic: "t"}
		}, "kafka.brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
