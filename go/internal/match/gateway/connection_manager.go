package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
	"github.com/m-maciver/split-the-g/go/internal/match/metrics"
)

var (
	ErrUnknownConnection = errors.New("connection not found")
	ErrSendBufferFull    = errors.New("connection send buffer full")
)

// Dispatcher receives connection lifecycle and decoded client commands
type Dispatcher interface {
	Connect(connID string)
	Handle(connID string, cmd events.Command)
	Disconnect(connID string)
}

// ConnectionManager manages WebSocket connections keyed by connection handle
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config     ConnectionConfig
	dispatcher Dispatcher
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

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
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  3 << 20, // artifacts are base64 images
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Anonymous clients from any origin
			return true
		},
	}
}

// NewConnectionManager creates a connection manager that reports to dispatcher
func NewConnectionManager(config ConnectionConfig, dispatcher Dispatcher) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		dispatcher: dispatcher,
	}
}

// SetDispatcher must be called before the first upgrade
func (cm *ConnectionManager) SetDispatcher(dispatcher Dispatcher) {
	cm.dispatcher = dispatcher
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)
	cm.dispatcher.Connect(connection.ID)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and reports the disconnect exactly once
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		delete(cm.connections, conn.ID)
		close(conn.Send)
	}
	cm.mu.Unlock()

	if !exists {
		return
	}
	cm.dispatcher.Disconnect(conn.ID)

	log.Info().
		Str("connection_id", conn.ID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

// Send queues msg for delivery to connID without blocking
func (cm *ConnectionManager) Send(connID string, msg events.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	cm.mu.RLock()
	conn, ok := cm.connections[connID]
	if !ok {
		cm.mu.RUnlock()
		metrics.SendDropped.Inc()
		return ErrUnknownConnection
	}
	select {
	case conn.Send <- data:
		cm.mu.RUnlock()
		metrics.MessagesSent.Inc()
		return nil
	default:
		cm.mu.RUnlock()
	}

	// Connection is slow/dead. Closing the socket ends the read pump, which
	// unregisters it.
	metrics.SendDropped.Inc()
	log.Warn().
		Str("connection_id", connID).
		Str("event_type", string(msg.Type)).
		Msg("connection send buffer full, closing connection")
	conn.Conn.Close()
	return ErrSendBufferFull
}

// CloseAll sends a close frame to every connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	deadline := time.Now().Add(cm.config.WriteTimeout)
	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		if err := c.Conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send close frame")
		}
		c.Conn.Close()
	}
}

// ConnectionStats summarises active connections
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	QueuedMessages   int `json:"queued_messages"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(cm.connections)}
	for _, c := range cm.connections {
		stats.QueuedMessages += len(c.Send)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
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
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client frames until the connection fails, then unregisters it
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage validates a frame and forwards it to the dispatcher.
// Malformed frames are answered here and never reach the coordinator.
func (c *Connection) handleClientMessage(message []byte) {
	metrics.MessagesReceived.Inc()

	cmd, err := events.Decode(message)
	if err != nil {
		code := events.CodeBadRequest
		if errors.Is(err, events.ErrInvalidPayload) {
			code = events.CodeValidation
		}
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("rejected client message")
		if sendErr := c.Manager.Send(c.ID, events.NewError(code, err.Error())); sendErr != nil {
			log.Debug().Err(sendErr).Str("connection_id", c.ID).Msg("failed to report decode error")
		}
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("event_type", string(cmd.Type())).
		Msg("received client message")
	c.Manager.dispatcher.Handle(c.ID, cmd)
}
