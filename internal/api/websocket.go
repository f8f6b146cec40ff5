package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/supermqtt/internal/infrastructure/logging"
	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

// Stream frame types.
const (
	EventMessage      = "message"
	EventFault        = "fault"
	EventDisconnected = "disconnected"
)

const (
	// wsSendBufferSize is the per-client outbound frame buffer. Frames for a
	// client whose buffer is full are dropped.
	wsSendBufferSize = 256

	wsPingInterval   = 30 * time.Second
	wsPongWait       = 60 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxInboundSize = 512
)

// StreamFrame is one JSON frame on /stream. Payload is base64 in JSON.
type StreamFrame struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Hub fans client events out to WebSocket subscribers.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one /stream connection. filters is fixed at upgrade time.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	filters []string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Access is governed by the bearer token, not the origin.
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", h.ClientCount())
}

// Unregister removes a client. Only the call that removes it closes its send
// channel, so racing with closeAll cannot double-close.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("stream client disconnected", "clients", h.ClientCount())
}

// BroadcastMessage sends an inbound MQTT message to every client with a
// matching filter.
func (h *Hub) BroadcastMessage(topic string, payload []byte) {
	h.broadcast(StreamFrame{Type: EventMessage, Topic: topic, Payload: payload}, func(c *WSClient) bool {
		return c.wants(topic)
	})
}

// BroadcastEvent sends a fault or disconnect to every client.
func (h *Hub) BroadcastEvent(kind string, err error) {
	frame := StreamFrame{Type: kind}
	if err != nil {
		frame.Error = err.Error()
	}
	h.broadcast(frame, func(*WSClient) bool { return true })
}

func (h *Hub) broadcast(frame StreamFrame, match func(*WSClient) bool) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal stream frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if match(c) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client; their write pumps then exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		client.conn.Close() //nolint:errcheck // Best-effort close during shutdown
		delete(h.clients, client)
	}
}

// handleStream upgrades to a WebSocket. Repeated ?filter= parameters select
// topics; none means every message. Faults and disconnects are always sent.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filters := r.URL.Query()["filter"]
	for _, f := range filters {
		if err := mqtt.ValidateTopicFilter(f); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	if len(filters) == 0 {
		filters = []string{"#"}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		filters: filters,
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) wants(topic string) bool {
	for _, f := range c.filters {
		if mqtt.TopicMatches(f, topic) {
			return true
		}
	}
	return false
}

// trySend queues data without blocking. The recover absorbs a send racing
// with Unregister closing the channel.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// readPump discards inbound frames and keeps the read deadline fresh; it
// exits (and unregisters) when the peer goes away.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Best-effort close
	}()

	c.conn.SetReadLimit(wsMaxInboundSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Best-effort close
	}()

	for {
		select {
		case frame, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
