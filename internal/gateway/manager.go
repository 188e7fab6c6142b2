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
)

// ConnectionManager manages spectator WebSocket connections, pooled by
// room code. The first spectator of a room starts a store feed for it;
// the last one leaving stops it.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage

	feed  feedFunc
	feeds map[string]func() // per-room feed stop functions
}

// feedFunc starts a document feed for a room, broadcasting events
// through the manager until the returned stop function runs.
type feedFunc func(ctx context.Context, code string) (stop func(), err error)

// FeedStarter binds a feed source to the manager that will fan its
// events out.
type FeedStarter func(cm *ConnectionManager) feedFunc

// Connection is one spectator WebSocket connection.
type Connection struct {
	ID      string
	Room    string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds WebSocket connection tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	Room  string
	Event *RoomEvent
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a manager that pulls room documents
// through the given feed starter; see StoreFeed for the usual one.
func NewConnectionManager(config ConnectionConfig, feed FeedStarter) *ConnectionManager {
	cm := &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 256),
		feeds:       make(map[string]func()),
	}
	cm.feed = feed(cm)
	return cm
}

// Start processes broadcast messages until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.stopAllFeeds()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a spectator WebSocket
// for the given room.
func (cm *ConnectionManager) UpgradeConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, code string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Room:        code,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if err := cm.registerConnection(ctx, connection); err != nil {
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("room", code).
		Msg("spectator connected")
	return nil
}

func (cm *ConnectionManager) registerConnection(ctx context.Context, conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.Room] == nil {
		stop, err := cm.feed(ctx, conn.Room)
		if err != nil {
			return fmt.Errorf("start room feed: %w", err)
		}
		cm.roomConnections[conn.Room] = make(map[*Connection]bool)
		cm.feeds[conn.Room] = stop
	}
	cm.roomConnections[conn.Room][conn] = true
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[conn.Room]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.roomConnections, conn.Room)
		if stop := cm.feeds[conn.Room]; stop != nil {
			stop()
			delete(cm.feeds, conn.Room)
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Msg("spectator disconnected")
}

func (cm *ConnectionManager) stopAllFeeds() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for code, stop := range cm.feeds {
		stop()
		delete(cm.feeds, code)
	}
}

// BroadcastToRoom queues an event for every spectator of a room.
func (cm *ConnectionManager) BroadcastToRoom(code string, event *RoomEvent) {
	select {
	case cm.broadcastCh <- broadcastMessage{Room: code, Event: event}:
	default:
		log.Warn().Str("room", code).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.Room]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			// Slow or dead consumer; drop it.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("room", conn.Room).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// Stats returns active connection counts per room.
func (cm *ConnectionManager) Stats() (total int, rooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, connections := range cm.roomConnections {
		total += len(connections)
	}
	return total, len(cm.roomConnections)
}

// writePump sends queued events and pings to the connection.
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
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection. Spectators are read-only; inbound
// traffic only services the keepalive.
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
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
