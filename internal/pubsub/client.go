package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nerrad567/supermqtt/internal/infrastructure/logging"
	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

var (
	// ErrConfigWhileConnected is returned by SetConnectionConfig on a live connection.
	ErrConfigWhileConnected = errors.New("pubsub: cannot change connection config while connected")

	// ErrObserverPanic wraps the value recovered from a panicking observer.
	ErrObserverPanic = errors.New("pubsub: observer panicked")
)

// ConnectionConfig holds the broker address and credentials.
type ConnectionConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	TLS          bool
	KeepAlive    time.Duration
	CleanSession bool
}

func (cc ConnectionConfig) addr() string {
	return net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port))
}

// Logger is the logging surface used by Client. *logging.Logger and
// *slog.Logger both satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transport is the MQTT protocol engine behind a Client. *mqtt.Session is
// the production implementation.
type Transport interface {
	Connect(ctx context.Context, opts mqtt.ConnectOptions) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, msg mqtt.Message) (mqtt.PublishResult, error)
	Subscribe(ctx context.Context, filters []mqtt.TopicFilter) (mqtt.SubscribeResult, error)
	Unsubscribe(ctx context.Context, topics []string) (mqtt.UnsubscribeResult, error)
	IsConnected() bool
}

var _ Transport = (*mqtt.Session)(nil)

// TransportFactory creates the transport on first Connect, wiring its
// events to the given handlers.
type TransportFactory func(h mqtt.Handlers) Transport

// SessionTransport returns a factory for paho-backed sessions.
func SessionTransport(cfg mqtt.SessionConfig) TransportFactory {
	return func(h mqtt.Handlers) Transport {
		return mqtt.NewSession(cfg, h)
	}
}

// Client is a blocking publish/subscribe facade over an asynchronous transport.
//
// Every operation returns a Result instead of an error and reports failures
// to fault observers as well. Nothing panics out to the caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Connect and Disconnect are serialised; concurrent Connect calls
//     perform at most one handshake.
//   - Observers run on transport goroutines and must not call blocking
//     Client methods synchronously.
type Client struct {
	// mu is held exclusively by Connect, Disconnect and SetConnectionConfig
	// and shared by in-flight operations.
	mu  sync.RWMutex
	cfg ConnectionConfig

	transport atomic.Pointer[transportHandle]
	state     stateManager
	clientID  atomic.Value // string

	newTransport TransportFactory
	newID        func() string
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	relay        relay
	log          Logger
	telemetry    Telemetry

	breakerThreshold uint32
	breakerReset     time.Duration
}

type transportHandle struct {
	Transport
}

// Option configures a Client.
type Option func(*Client)

// WithTransportFactory replaces the default paho session factory.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) {
		c.newTransport = f
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithTelemetry sets the measurement sink.
func WithTelemetry(t Telemetry) Option {
	return func(c *Client) {
		c.telemetry = t
	}
}

// WithPublishRateLimit throttles Publish to r messages per second with the
// given burst. Publish waits for a token, bounded by its context.
// A non-positive rate disables the limit.
func WithPublishRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithCircuitBreaker stops connect attempts for reset after threshold
// consecutive handshake failures. While open, Connect and any Publish or
// Subscribe that needs a connection return KindNotConnected without
// contacting the broker. A zero threshold disables the breaker.
func WithCircuitBreaker(threshold uint32, reset time.Duration) Option {
	return func(c *Client) {
		c.breakerThreshold = threshold
		c.breakerReset = reset
	}
}

// WithIdentityGenerator replaces uuid.NewString as the client ID source.
// It is called once per connect attempt.
func WithIdentityGenerator(gen func() string) Option {
	return func(c *Client) {
		c.newID = gen
	}
}

// New creates a Client. No transport is created and nothing is dialled
// until the first Connect, Publish or Subscribe.
func New(cfg ConnectionConfig, opts ...Option) *Client {
	c := &Client{
		cfg:          cfg,
		newTransport: SessionTransport(mqtt.DefaultSessionConfig()),
		newID:        uuid.NewString,
		log:          logging.Nop(),
		telemetry:    nopTelemetry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.relay.log = c.log
	c.clientID.Store("")

	if c.breakerThreshold > 0 {
		threshold := c.breakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mqtt-connect",
			MaxRequests: 1,
			Timeout:     c.breakerReset,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn("connect circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	return c
}

// Connect establishes the connection if it is not already up.
//
// The first call creates the transport. Each handshake presents a fresh
// client ID. When already connected the call returns an OK Result without
// contacting the broker.
func (c *Client) Connect(ctx context.Context) Result {
	c.mu.Lock()
	lost := c.settleLossLocked()
	res, fault := c.connectLocked(ctx)
	c.mu.Unlock()

	// Observers run after the lock is released.
	if lost != nil {
		c.relay.disconnect(lost)
	}
	if fault != nil {
		c.fault(fault)
	}
	return res
}

// connectLocked performs the handshake and returns the fault to report, if any.
func (c *Client) connectLocked(ctx context.Context) (Result, error) {
	if c.IsConnected() {
		return okResult, nil
	}

	t := c.ensureTransport()

	id := c.newID()
	c.clientID.Store(id)
	opts := mqtt.ConnectOptions{
		Host:         c.cfg.Host,
		Port:         c.cfg.Port,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		ClientID:     id,
		TLS:          c.cfg.TLS,
		KeepAlive:    c.cfg.KeepAlive,
		CleanSession: c.cfg.CleanSession,
	}

	start := time.Now()
	err := protect(func() error {
		if c.breaker == nil {
			return t.Connect(ctx, opts)
		}
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, t.Connect(ctx, opts)
		})
		return err
	})

	if err == nil {
		c.state.set(StateConnected)
		// A loss reported before the state flip was ignored by the loss
		// handler; catch it here.
		if !t.IsConnected() && c.state.transition(StateConnected, StateDisconnected) {
			err = fmt.Errorf("%w: connection dropped during handshake", mqtt.ErrNotConnected)
		}
	}

	res := classify(err)
	c.telemetry.RecordOperation("connect", res.Kind.String(), time.Since(start))
	if !res.OK() {
		c.telemetry.RecordConnection(EventFailed)
		return res, newFault("connect", c.cfg.addr(), err)
	}

	c.telemetry.RecordConnection(EventConnected)
	c.log.Info("connected to broker", "broker", c.cfg.addr(), "client_id", id)
	return res, nil
}

// settleLossLocked accounts for a connection that went down before its
// loss callback arrived. The transport already reports it down while the
// callback waits for running observers, so a reconnect in that window
// would otherwise replace the connection without any notification.
// It returns the error to hand to disconnected observers. Callers hold mu.
func (c *Client) settleLossLocked() error {
	h := c.transport.Load()
	if h == nil || h.IsConnected() {
		return nil
	}
	if !c.state.transition(StateConnected, StateDisconnected) {
		return nil
	}
	err := fmt.Errorf("%w: connection lost", mqtt.ErrNotConnected)
	c.telemetry.RecordConnection(EventLost)
	c.log.Warn("connection to broker lost", "client_id", c.ClientID(), "error", err)
	return err
}

// ensureTransport returns the transport, creating it on first use.
// Callers hold mu exclusively.
func (c *Client) ensureTransport() Transport {
	if h := c.transport.Load(); h != nil {
		return h.Transport
	}
	t := c.newTransport(mqtt.Handlers{
		OnMessage:        c.handleMessage,
		OnConnectionLost: c.handleConnectionLost,
	})
	c.transport.Store(&transportHandle{t})
	c.state.transition(StateUninitialized, StateDisconnected)
	return t
}

// Disconnect closes the connection and waits for the transport to confirm.
// Disconnected observers are not notified. Failures go to fault observers.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	addr := c.cfg.addr()
	h := c.transport.Load()
	if h == nil {
		c.mu.Unlock()
		return
	}

	// A loss that happened before this call is still reported. Flip the
	// state first so a loss raised by the teardown is not.
	lost := c.settleLossLocked()
	wasConnected := c.state.transition(StateConnected, StateDisconnected)
	err := protect(func() error { return h.Disconnect(ctx) })
	c.mu.Unlock()

	if lost != nil {
		c.relay.disconnect(lost)
	}
	if err != nil {
		c.fault(newFault("disconnect", addr, err))
		return
	}

	if wasConnected {
		c.telemetry.RecordConnection(EventDisconnected)
		c.log.Info("disconnected from broker", "broker", addr)
	}
}

// IsConnected reports whether the connection is up. It never blocks.
func (c *Client) IsConnected() bool {
	h := c.transport.Load()
	return h != nil && c.state.get() == StateConnected && h.IsConnected()
}

// State returns the lifecycle state.
func (c *Client) State() State {
	s := c.state.get()
	if s == StateConnected && !c.IsConnected() {
		return StateDisconnected
	}
	return s
}

// ClientID returns the identifier of the current or most recent handshake,
// or "" before the first Connect.
func (c *Client) ClientID() string {
	return c.clientID.Load().(string)
}

// SetConnectionConfig replaces the broker address and credentials used by
// the next handshake.
func (c *Client) SetConnectionConfig(cfg ConnectionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return ErrConfigWhileConnected
	}
	c.cfg = cfg
	return nil
}

// HealthCheck returns nil when connected and mqtt.ErrNotConnected otherwise.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("pubsub health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

// OnFault registers an observer for faults. The returned func unregisters it.
func (c *Client) OnFault(fn func(err error)) func() {
	return c.relay.faults.add(fn)
}

// OnMessage registers an observer for inbound messages, called in delivery
// order. A returned error is reported as a fault.
func (c *Client) OnMessage(fn func(topic string, payload []byte) error) func() {
	return c.relay.messages.add(fn)
}

// OnDisconnected registers an observer for connection losses the caller
// did not initiate. It fires once per loss with the transport's error.
func (c *Client) OnDisconnected(fn func(err error)) func() {
	return c.relay.disconnected.add(fn)
}

// ensureConnected connects on demand. A failed connect has already been
// reported as a fault.
func (c *Client) ensureConnected(ctx context.Context) Result {
	if c.IsConnected() {
		return okResult
	}
	return c.Connect(ctx)
}

// withTransport runs fn against the connected transport while holding mu
// shared, converting a transport panic into an error.
func (c *Client) withTransport(fn func(t Transport) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return protect(func() error {
		h := c.transport.Load()
		if h == nil || c.state.get() != StateConnected {
			return mqtt.ErrNotConnected
		}
		return fn(h.Transport)
	})
}

// fail classifies err, reports it as a fault and records the outcome.
func (c *Client) fail(op, subject string, start time.Time, err error) Result {
	res := classify(err)
	c.telemetry.RecordOperation(op, res.Kind.String(), time.Since(start))
	c.fault(newFault(op, subject, err))
	return res
}

func (c *Client) fault(err error) {
	c.log.Warn("pubsub fault", "error", err)
	c.relay.fault(err)
}

func (c *Client) handleMessage(topic string, payload []byte) {
	c.telemetry.RecordMessage(topic, len(payload))
	c.relay.message(topic, payload)
}

// handleConnectionLost runs on a transport goroutine and never takes mu,
// so it cannot deadlock with an operation blocked in the transport.
func (c *Client) handleConnectionLost(err error) {
	// A callback from a replaced connection finds the transport up again;
	// the loss was already settled by the reconnect.
	if h := c.transport.Load(); h != nil && h.IsConnected() {
		return
	}
	if !c.state.transition(StateConnected, StateDisconnected) {
		return
	}
	c.telemetry.RecordConnection(EventLost)
	c.log.Warn("connection to broker lost", "client_id", c.ClientID(), "error", err)
	c.relay.disconnect(err)
}
