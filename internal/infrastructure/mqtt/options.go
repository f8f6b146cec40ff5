package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is the maximum time to wait for PUBACK/SUBACK/UNSUBACK.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// protocolVersion311 pins MQTT 3.1.1. Without it paho silently retries
	// with 3.1 after a refused CONNACK and reports the second code.
	protocolVersion311 = 4

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// SessionConfig holds the timeouts applied to every blocking session call.
type SessionConfig struct {
	ConnectTimeout    time.Duration
	OperationTimeout  time.Duration
	DisconnectQuiesce uint // milliseconds
}

// DefaultSessionConfig returns the built-in timeouts.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout:    defaultConnectTimeout,
		OperationTimeout:  defaultOperationTimeout,
		DisconnectQuiesce: defaultDisconnectQuiesce,
	}
}

// NewSessionConfig derives session timeouts from the application config.
// Non-positive values fall back to the defaults.
func NewSessionConfig(cfg *config.Config) SessionConfig {
	sc := DefaultSessionConfig()
	if d := cfg.GetConnectTimeout(); d > 0 {
		sc.ConnectTimeout = d
	}
	if d := cfg.GetOperationTimeout(); d > 0 {
		sc.OperationTimeout = d
	}
	if cfg.Client.DisconnectQuiesce >= 0 {
		sc.DisconnectQuiesce = uint(cfg.Client.DisconnectQuiesce) // #nosec G115 -- checked non-negative
	}
	return sc
}

func (sc SessionConfig) withDefaults() SessionConfig {
	if sc.ConnectTimeout <= 0 {
		sc.ConnectTimeout = defaultConnectTimeout
	}
	if sc.OperationTimeout <= 0 {
		sc.OperationTimeout = defaultOperationTimeout
	}
	return sc
}

// brokerURL returns the paho server URL for the given options.
func brokerURL(opts ConnectOptions) string {
	scheme := "tcp"
	if opts.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port)
}

// buildClientOptions creates paho options for a single connection attempt.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - The per-attempt client ID
//   - Authentication credentials (if provided)
//   - MQTT 3.1.1 with ordered delivery
//   - No automatic reconnect or connect retry: the facade owns reconnection
//   - TLS configuration (if enabled)
func buildClientOptions(opts ConnectOptions, sc SessionConfig) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()

	po.AddBroker(brokerURL(opts))
	po.SetClientID(opts.ClientID)

	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	po.SetProtocolVersion(protocolVersion311)
	po.SetCleanSession(opts.CleanSession)

	// Messages are handed to the relay one at a time in arrival order.
	po.SetOrderMatters(true)

	// A lost connection must surface as a single disconnect event.
	po.SetAutoReconnect(false)
	po.SetConnectRetry(false)

	po.SetConnectTimeout(sc.ConnectTimeout)
	po.SetWriteTimeout(sc.OperationTimeout)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	po.SetKeepAlive(keepAlive)

	if opts.TLS {
		tlsConfig := opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{
				MinVersion: tlsMinVersion,
				ServerName: opts.Host,
			}
		}
		po.SetTLSConfig(tlsConfig)
	}

	return po
}
