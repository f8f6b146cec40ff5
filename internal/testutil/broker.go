// Package testutil runs an in-process MQTT broker for integration tests.
package testutil

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

// Broker is a mochi-mqtt server listening on a loopback port.
type Broker struct {
	Host string
	Port int

	server    *mqtt.Server
	closeOnce sync.Once
}

type brokerOptions struct {
	username string
	password string
}

// BrokerOption configures StartBroker.
type BrokerOption func(*brokerOptions)

// WithCredentials makes the broker reject connections that do not present
// exactly this username and password.
func WithCredentials(username, password string) BrokerOption {
	return func(o *brokerOptions) {
		o.username = username
		o.password = password
	}
}

// StartBroker starts a broker on a free port and stops it when the test ends.
func StartBroker(t testing.TB, opts ...BrokerOption) *Broker {
	t.Helper()

	var o brokerOptions
	for _, opt := range opts {
		opt(&o)
	}

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
	})

	if o.username != "" {
		require.NoError(t, server.AddHook(&credentialsHook{username: o.username, password: o.password}, nil))
	} else {
		require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	}

	port := FreePort(t)
	listener := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("test-%d", port),
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	require.NoError(t, server.AddListener(listener))

	go func() {
		_ = server.Serve()
	}()

	b := &Broker{Host: "127.0.0.1", Port: port, server: server}
	t.Cleanup(b.Close)

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", b.Addr(), 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond, "broker did not start listening")

	// Let the server drop the readiness probe before the test attaches clients.
	time.Sleep(50 * time.Millisecond)

	return b
}

// Addr returns host:port.
func (b *Broker) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Publish injects a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// Kick drops the connection of the client with the given ID, as a broker
// restart or takeover would. It reports whether the client was found.
func (b *Broker) Kick(clientID string) bool {
	cl, ok := b.server.Clients.Get(clientID)
	if !ok {
		return false
	}
	cl.Stop(errors.New("kicked by test broker"))
	return true
}

// Close stops the broker, dropping every client connection. Safe to call twice.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		_ = b.server.Close()
	})
}

// FreePort returns a TCP port that was free a moment ago.
func FreePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// credentialsHook accepts a single username/password pair and allows every topic.
type credentialsHook struct {
	mqtt.HookBase
	username string
	password string
}

func (h *credentialsHook) ID() string {
	return "test-credentials"
}

func (h *credentialsHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
	}, []byte{b})
}

func (h *credentialsHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	userOK := subtle.ConstantTimeCompare([]byte(h.username), cl.Properties.Username) == 1
	passOK := subtle.ConstantTimeCompare([]byte(h.password), pk.Connect.Password) == 1
	return userOK && passOK
}

func (h *credentialsHook) OnACLCheck(_ *mqtt.Client, _ string, _ bool) bool {
	return true
}
