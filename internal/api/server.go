package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
	"github.com/nerrad567/supermqtt/internal/infrastructure/logging"
	"github.com/nerrad567/supermqtt/internal/journal"
	"github.com/nerrad567/supermqtt/internal/pubsub"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a backing component reported by /health.
// *database.DB and *influxdb.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Client  *pubsub.Client
	Journal journal.Repository // optional; /faults answers 503 without it
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP bridge in front of a pubsub client.
type Server struct {
	cfg       config.APIConfig
	jwtSecret string
	logger    *logging.Logger
	client    *pubsub.Client
	journal   journal.Repository
	checks    map[string]HealthChecker
	version   string
	hub       *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	detach   []func()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Client == nil {
		return nil, errors.New("pubsub client is required")
	}

	return &Server{
		cfg:       deps.Config,
		jwtSecret: deps.Config.JWTSecret,
		logger:    deps.Logger,
		client:    deps.Client,
		journal:   deps.Journal,
		checks:    deps.Checks,
		version:   deps.Version,
		hub:       NewHub(deps.Logger),
	}, nil
}

// Handler returns the router with every route and middleware attached, and
// starts relaying client events to stream subscribers. Start calls it; tests
// may mount it on an httptest server directly.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	if s.detach == nil {
		s.detach = []func(){
			s.client.OnMessage(func(topic string, payload []byte) error {
				s.hub.BroadcastMessage(topic, payload)
				return nil
			}),
			s.client.OnFault(func(err error) {
				s.hub.BroadcastEvent(EventFault, err)
			}),
			s.client.OnDisconnected(func(err error) {
				s.hub.BroadcastEvent(EventDisconnected, err)
			}),
		}
	}
	s.mu.Unlock()

	return s.buildRouter()
}

// Start binds the listener and serves in the background. Binding errors
// (port in use) are returned synchronously.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String(), "auth", s.jwtSecret != "")
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close detaches from the client, drops stream connections and shuts the
// HTTP server down, waiting up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	detach := s.detach
	s.server, s.detach = nil, nil
	s.mu.Unlock()

	for _, d := range detach {
		d()
	}
	s.hub.closeAll()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
