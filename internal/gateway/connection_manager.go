package gateway

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

	"github.com/duoeng/wordduel/internal/room"
)

// ClientMessageHandler processes messages a connected player sends over
// the socket.
type ClientMessageHandler interface {
	HandleClientMessage(ctx context.Context, roomCode, userID string, message []byte)
}

// ConnectionManager owns the WebSocket connections, pooled per room
// code, and fans room updates out to them.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	lastVersion     map[string]int64
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  ClientMessageHandler

	broadcastCh chan room.Update
}

// Connection is one WebSocket client attached to a room.
type Connection struct {
	ID       string
	UserID   string
	RoomCode string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	OnClose     func()
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager. handler
// may be nil, in which case client messages are only logged.
func NewConnectionManager(config ConnectionConfig, handler ClientMessageHandler) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		lastVersion:     make(map[string]int64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan room.Update, 1000),
	}
}

// Publish implements room.Broadcaster: updates enter the broadcast
// queue without blocking the game engine.
func (cm *ConnectionManager) Publish(update room.Update) {
	select {
	case cm.broadcastCh <- update:
	default:
		log.Warn().Str("room_code", update.RoomCode).Msg("broadcast channel full, dropping update")
	}
}

// Start processes broadcast updates until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case update := <-cm.broadcastCh:
			cm.handleBroadcast(update)
		}
	}
}

// UpgradeConnection upgrades the request to a WebSocket attached to the
// room. onClose, if non-nil, runs once when the connection drops.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, roomCode string, onClose func()) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoomCode:    roomCode,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		OnClose:     onClose,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("room_code", roomCode).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomCode] == nil {
		cm.roomConnections[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomCode][conn] = true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.RoomCode]
	removed := false
	if exists {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.Send)
			removed = true
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomCode)
				delete(cm.lastVersion, conn.RoomCode)
			}
		}
	}
	cm.mu.Unlock()

	if removed {
		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Str("room_code", conn.RoomCode).
			Msg("connection unregistered")
		if conn.OnClose != nil {
			conn.OnClose()
		}
	}
}

// handleBroadcast delivers one room update, each player receiving their
// own redacted view. Updates older than one already delivered for the
// room are dropped to keep observed versions monotonic.
func (cm *ConnectionManager) handleBroadcast(update room.Update) {
	cm.mu.Lock()
	if update.Version <= cm.lastVersion[update.RoomCode] {
		cm.mu.Unlock()
		return
	}
	cm.lastVersion[update.RoomCode] = update.Version

	connections := cm.roomConnections[update.RoomCode]
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.Unlock()

	for _, conn := range targets {
		snap, ok := update.ForViewer[conn.UserID]
		if !ok {
			continue
		}
		payload, err := json.Marshal(envelope{Type: "room_state", Data: snap})
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal room state")
			continue
		}

		select {
		case conn.Send <- payload:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("room_code", update.RoomCode).
		Int64("version", update.Version).
		Int("connections", len(targets)).
		Msg("room update broadcasted")
}

// Stats reports active connection counts per room.
func (cm *ConnectionManager) Stats() (total int, rooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.roomConnections {
		total += len(connections)
	}
	return total, len(cm.roomConnections)
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			c.Manager.handler.HandleClientMessage(ctx, c.RoomCode, c.UserID, message)
			cancel()
		} else {
			log.Debug().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID).
				Msg("received client message")
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
