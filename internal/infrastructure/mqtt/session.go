package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Session is a reconnectable MQTT connection backed by paho.mqtt.golang.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Connect and Disconnect are expected to be serialised by the caller;
//     concurrent calls are safe but the last one wins.
type Session struct {
	cfg      SessionConfig
	handlers Handlers

	// client is the live or handshaking paho client, nil before the first
	// Connect and after a failed handshake, Disconnect or connection loss.
	client pahomqtt.Client
	mu     sync.RWMutex
}

// NewSession creates an unconnected session.
//
// Parameters:
//   - cfg: Timeouts for connect, operations and disconnect
//   - handlers: Callbacks for inbound messages and connection loss (either may be nil)
func NewSession(cfg SessionConfig, handlers Handlers) *Session {
	return &Session{
		cfg:      cfg.withDefaults(),
		handlers: handlers,
	}
}

// Connect performs the CONNECT/CONNACK handshake with a new paho client.
//
// If the session is already connected the call is a no-op. A broker
// refusal is returned as a *ReasonCodeError wrapped in ErrConnectionFailed,
// so errors.Is(err, ErrAuthenticationFailed) identifies bad credentials.
//
// Returns:
//   - error: nil once the broker accepted the connection
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	if s.IsConnected() {
		return nil
	}

	po := buildClientOptions(opts, s.cfg)
	po.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handleMessage(msg)
	})
	po.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		s.handleConnectionLost(c, err)
	})

	client := pahomqtt.NewClient(po)

	// Install the client before the handshake so a loss reported right after
	// CONNACK is attributed to it.
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	token := client.Connect()
	if err := waitToken(ctx, token, s.cfg.ConnectTimeout); err != nil {
		s.mu.Lock()
		if s.client == client {
			s.client = nil
		}
		s.mu.Unlock()

		if errors.Is(err, ErrTimeout) {
			// Abandon the attempt so a late CONNACK cannot leave a stray connection.
			client.Disconnect(0)
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && ConnAckCode(ct.ReturnCode()).refused() {
			err = &ReasonCodeError{Op: "connect", Code: ct.ReturnCode(), Err: err}
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// Disconnect closes the connection, waiting up to the quiesce period for
// in-flight work. It never triggers Handlers.OnConnectionLost and is a
// no-op when not connected.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Disconnect(s.cfg.DisconnectQuiesce)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt: disconnect: %w: %w", ErrTimeout, ctx.Err())
	}
}

// IsConnected reports whether a paho client exists and holds an active connection.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnected()
}

// current returns the connected paho client or ErrNotConnected.
func (s *Session) current() (pahomqtt.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil || !s.client.IsConnected() {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// handleMessage forwards an inbound message to the installed handler.
func (s *Session) handleMessage(msg pahomqtt.Message) {
	if s.handlers.OnMessage == nil {
		return
	}
	s.handlers.OnMessage(msg.Topic(), msg.Payload())
}

// handleConnectionLost runs on a paho goroutine after an unexpected loss.
// Losses reported by an abandoned client are ignored.
func (s *Session) handleConnectionLost(c pahomqtt.Client, err error) {
	s.mu.Lock()
	current := s.client != nil && s.client == c
	if current {
		s.client = nil
	}
	s.mu.Unlock()

	if !current || s.handlers.OnConnectionLost == nil {
		return
	}
	s.handlers.OnConnectionLost(err)
}

// waitToken blocks until the token completes, the timeout expires or ctx is done.
//
// Returns:
//   - error: the token's error, or ErrTimeout (wrapping ctx.Err() on cancellation)
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w: no acknowledgement after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
