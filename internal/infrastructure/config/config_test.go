package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  host: "broker.local"
  port: 8883
  tls: true
auth:
  username: "sensor"
  password: "hunter2"
client:
  connect_timeout: 3
  operation_timeout: 2
  publish_rate: 50
  publish_burst: 10
  breaker:
    failure_threshold: 5
    reset_timeout: 15
journal:
  enabled: true
  path: "/tmp/journal.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.True(t, cfg.Broker.TLS)
	assert.Equal(t, "sensor", cfg.Auth.Username)
	assert.Equal(t, 3*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetOperationTimeout())
	assert.Equal(t, 50.0, cfg.Client.PublishRate)
	assert.Equal(t, uint32(5), cfg.Client.Breaker.FailureThreshold)
	assert.Equal(t, 15*time.Second, cfg.GetBreakerResetTimeout())
	assert.True(t, cfg.Journal.Enabled)

	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60*time.Second, cfg.GetKeepAlive())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
broker:
  host: ""
  port: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.host is required")
	assert.Contains(t, err.Error(), "broker.port must be between 1 and 65535")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Broker.Host = "" },
			wantErr: "broker.host",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Broker.Port = 70000 },
			wantErr: "broker.port",
		},
		{
			name:    "password without username",
			mutate:  func(c *Config) { c.Auth.Password = "secret" },
			wantErr: "auth.password",
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Client.ConnectTimeout = 0 },
			wantErr: "client.connect_timeout",
		},
		{
			name:    "zero operation timeout",
			mutate:  func(c *Config) { c.Client.OperationTimeout = 0 },
			wantErr: "client.operation_timeout",
		},
		{
			name: "rate without burst",
			mutate: func(c *Config) {
				c.Client.PublishRate = 10
				c.Client.PublishBurst = 0
			},
			wantErr: "client.publish_burst",
		},
		{
			name: "breaker without reset timeout",
			mutate: func(c *Config) {
				c.Client.Breaker.FailureThreshold = 3
				c.Client.Breaker.ResetTimeout = 0
			},
			wantErr: "client.breaker.reset_timeout",
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: "journal.path",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "mqtt" },
			wantErr: "influxdb.url",
		},
		{
			name: "metrics enabled without endpoint",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Endpoint = ""
			},
			wantErr: "metrics.endpoint",
		},
		{
			name:    "api port zero",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "negative token ttl",
			mutate:  func(c *Config) { c.API.TokenTTL = -1 },
			wantErr: "api.token_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("SUPERMQTT_BROKER_HOST", "mqtt.example.com")
	t.Setenv("SUPERMQTT_BROKER_PORT", "8883")
	t.Setenv("SUPERMQTT_USERNAME", "testuser")
	t.Setenv("SUPERMQTT_PASSWORD", "testpass")
	t.Setenv("SUPERMQTT_JOURNAL_PATH", "/custom/journal.db")
	t.Setenv("SUPERMQTT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SUPERMQTT_METRICS_ENDPOINT", "otel:4317")
	t.Setenv("SUPERMQTT_LOG_LEVEL", "debug")
	t.Setenv("SUPERMQTT_API_JWT_SECRET", "hmac-secret")

	applyEnvOverrides(cfg)

	assert.Equal(t, "mqtt.example.com", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.Equal(t, "testuser", cfg.Auth.Username)
	assert.Equal(t, "testpass", cfg.Auth.Password)
	assert.Equal(t, "/custom/journal.db", cfg.Journal.Path)
	assert.Equal(t, "secret-token", cfg.InfluxDB.Token)
	assert.Equal(t, "otel:4317", cfg.Metrics.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "hmac-secret", cfg.API.JWTSecret)
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("SUPERMQTT_BROKER_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	assert.Equal(t, 1883, cfg.Broker.Port)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SUPERMQTT_BROKER_HOST", "env-broker")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-broker", cfg.Broker.Host)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.True(t, cfg.Broker.CleanSession)
	assert.Equal(t, 10*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetOperationTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.GetJournalRetention())
	assert.Zero(t, cfg.Client.Breaker.FailureThreshold, "breaker is opt-in")
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Empty(t, cfg.API.JWTSecret, "API auth is opt-in")
	assert.Equal(t, time.Hour, cfg.GetTokenTTL())
}
