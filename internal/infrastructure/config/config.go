package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for supermqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Auth     AuthConfig     `yaml:"auth"`
	Client   ClientConfig   `yaml:"client"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	TLS          bool   `yaml:"tls"`
	KeepAlive    int    `yaml:"keep_alive"`
	CleanSession bool   `yaml:"clean_session"`
}

// AuthConfig contains MQTT authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ClientConfig tunes the facade: timeouts, publish throttling and the
// connect circuit breaker.
type ClientConfig struct {
	// ConnectTimeout bounds the CONNECT/CONNACK handshake (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// OperationTimeout bounds publish, subscribe and unsubscribe acknowledgements (seconds).
	OperationTimeout int `yaml:"operation_timeout"`

	// DisconnectQuiesce is the time paho waits for in-flight work on disconnect (milliseconds).
	DisconnectQuiesce int `yaml:"disconnect_quiesce"`

	// PublishRate limits outgoing publishes per second. 0 disables throttling.
	PublishRate float64 `yaml:"publish_rate"`

	// PublishBurst is the token bucket size used with PublishRate.
	PublishBurst int `yaml:"publish_burst"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker guarding connect attempts.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed connects that opens
	// the breaker. 0 disables the breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// ResetTimeout is how long the breaker stays open before a trial connect (seconds).
	ResetTimeout int `yaml:"reset_timeout"`
}

// JournalConfig contains the SQLite fault journal settings.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains OpenTelemetry metrics export settings.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Interval    int    `yaml:"interval"`
}

// APIConfig contains the HTTP bridge settings used by `supermqtt serve`.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// JWTSecret signs and verifies bearer tokens. Empty disables authentication.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of tokens minted by `supermqtt token` (minutes).
	TokenTTL int `yaml:"token_ttl"`

	Timeouts APITimeouts `yaml:"timeouts"`
}

// APITimeouts bounds HTTP request handling (seconds).
type APITimeouts struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SUPERMQTT_SECTION_KEY
// For example: SUPERMQTT_BROKER_HOST, SUPERMQTT_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Environment overrides are not applied; use FromEnv for that.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:         "localhost",
			Port:         1883,
			KeepAlive:    60,
			CleanSession: true,
		},
		Client: ClientConfig{
			ConnectTimeout:    10,
			OperationTimeout:  5,
			DisconnectQuiesce: 1000,
			PublishBurst:      1,
			Breaker: BreakerConfig{
				ResetTimeout: 30,
			},
		},
		Journal: JournalConfig{
			Path:          "./data/supermqtt.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "supermqtt",
			Interval:    10,
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8080,
			TokenTTL: 60,
			Timeouts: APITimeouts{Read: 10, Write: 10, Idle: 60},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// FromEnv returns the default configuration with environment overrides applied.
// Used when no configuration file is present.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SUPERMQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("SUPERMQTT_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("SUPERMQTT_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}

	// Credentials are usually injected rather than written to disk.
	if v := os.Getenv("SUPERMQTT_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("SUPERMQTT_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Journal
	if v := os.Getenv("SUPERMQTT_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SUPERMQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Metrics
	if v := os.Getenv("SUPERMQTT_METRICS_ENDPOINT"); v != "" {
		cfg.Metrics.Endpoint = v
	}

	// API
	if v := os.Getenv("SUPERMQTT_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("SUPERMQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.KeepAlive < 0 {
		errs = append(errs, "broker.keep_alive must not be negative")
	}

	// A password without a username is rejected by MQTT 3.1.1 brokers.
	if c.Auth.Username == "" && c.Auth.Password != "" {
		errs = append(errs, "auth.password requires auth.username")
	}

	if c.Client.ConnectTimeout <= 0 {
		errs = append(errs, "client.connect_timeout must be positive")
	}
	if c.Client.OperationTimeout <= 0 {
		errs = append(errs, "client.operation_timeout must be positive")
	}
	if c.Client.DisconnectQuiesce < 0 {
		errs = append(errs, "client.disconnect_quiesce must not be negative")
	}
	if c.Client.PublishRate < 0 {
		errs = append(errs, "client.publish_rate must not be negative")
	}
	if c.Client.PublishRate > 0 && c.Client.PublishBurst < 1 {
		errs = append(errs, "client.publish_burst must be at least 1 when publish_rate is set")
	}
	if c.Client.Breaker.FailureThreshold > 0 && c.Client.Breaker.ResetTimeout <= 0 {
		errs = append(errs, "client.breaker.reset_timeout must be positive when the breaker is enabled")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.Journal.RetentionDays < 0 {
		errs = append(errs, "journal.retention_days must not be negative")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		errs = append(errs, "metrics.endpoint is required when metrics are enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TokenTTL < 0 {
		errs = append(errs, "api.token_ttl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Client.ConnectTimeout) * time.Second
}

// GetOperationTimeout returns the publish/subscribe acknowledgement timeout as a Duration.
func (c *Config) GetOperationTimeout() time.Duration {
	return time.Duration(c.Client.OperationTimeout) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.Broker.KeepAlive) * time.Second
}

// GetBreakerResetTimeout returns how long an open breaker waits before a trial connect.
func (c *Config) GetBreakerResetTimeout() time.Duration {
	return time.Duration(c.Client.Breaker.ResetTimeout) * time.Second
}

// GetJournalRetention returns the journal retention window. Zero means keep forever.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}

// GetTokenTTL returns the lifetime of minted API tokens.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.API.TokenTTL) * time.Minute
}
