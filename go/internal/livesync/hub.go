package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// MessageHandler reacts to connections and the frames they send.
type MessageHandler interface {
	// OnConnect returns the frames a new connection receives before any broadcast.
	OnConnect(conn *Connection) []*Event
	HandleMessage(ctx context.Context, conn *Connection, msg ClientMessage)
}

// Hub manages every live WebSocket connection
type Hub struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	handler MessageHandler

	// Event broadcasting
	broadcastCh chan []byte

	// Lives until Start returns; handed to message handlers
	ctx    context.Context
	cancel context.CancelFunc
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	hub    *Hub

	// Connection metadata
	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewHub creates a new WebSocket connection hub
func NewHub(config ConnectionConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, config.BroadcastBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetHandler installs the handler for incoming frames. Call before Start.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Start processes broadcasts until ctx is done, then drops every connection
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			h.shutdown()
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

func (h *Hub) shutdown() {
	h.cancel()

	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		delete(h.connections, conn)
		close(conn.Send)
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		ConnectedAt: time.Now(),
	}

	// greeting frames are queued before registration so no broadcast can overtake them
	if handler := h.getHandler(); handler != nil {
		for _, event := range handler.OnConnect(connection) {
			h.enqueueGreeting(connection, event)
		}
	}

	h.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")
	return nil
}

func (h *Hub) enqueueGreeting(conn *Connection, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal greeting")
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("event_type", string(event.Type)).
			Msg("send buffer full, dropping greeting")
	}
}

func (h *Hub) getHandler() MessageHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// registerConnection adds a connection to the hub
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(h.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the hub
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection unregistered")
	}
}

// Broadcast queues an event for every connection
func (h *Hub) Broadcast(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	select {
	case h.broadcastCh <- data:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping message")
	}
}

// SendTo delivers an event to a single connection
func (h *Hub) SendTo(conn *Connection, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	_, registered := h.connections[conn]
	delivered := true
	if registered {
		select {
		case conn.Send <- data:
		default:
			delivered = false
		}
	}
	h.mu.RUnlock()

	if !delivered {
		h.dropSlow(conn)
	}
}

// handleBroadcast fans a marshaled event out to every connection. Sends happen
// under the read lock so a concurrent unregister cannot close a channel mid-send.
func (h *Hub) handleBroadcast(data []byte) {
	var slow []*Connection

	h.mu.RLock()
	for conn := range h.connections {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	count := len(h.connections)
	h.mu.RUnlock()

	for _, conn := range slow {
		h.dropSlow(conn)
	}

	log.Debug().
		Int("connections", count).
		Int("dropped", len(slow)).
		Msg("event broadcasted")
}

func (h *Hub) dropSlow(conn *Connection) {
	log.Warn().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection send buffer full, closing connection")
	h.unregisterConnection(conn)
	conn.Conn.Close()
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetConnectionStats returns statistics about active connections
func (h *Hub) GetConnectionStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[string]int)
	for conn := range h.connections {
		users[conn.UserID]++
	}

	return map[string]interface{}{
		"total_connections": len(h.connections),
		"unique_users":      len(users),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				c.hub.unregisterConnection(c)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				c.hub.unregisterConnection(c)
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client frame and hands it to the hub's handler
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("malformed client message")
		if event, err := NewEvent(EventTypeError, ErrorPayload{Message: "malformed message"}, time.Now()); err == nil {
			c.hub.SendTo(c, event)
		}
		return
	}

	handler := c.hub.getHandler()
	if handler == nil {
		return
	}
	handler.HandleMessage(c.hub.ctx, c, msg)
}
