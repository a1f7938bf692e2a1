package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/partshub/runtime/infrastructure/cache"
	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/system/events"
)

// connection is a single live WebSocket client bound to one authenticated
// user.
type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan Response
	rooms  map[string]struct{}
	mu     sync.Mutex
}

func (c *connection) writeLoop() {
	for resp := range c.send {
		c.mu.Lock()
		err := c.ws.WriteJSON(resp)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *connection) deliver(resp Response) {
	select {
	case c.send <- resp:
	default:
	}
}

// ConnectionManager tracks every live WebSocket connection on this node,
// indexes them by room membership, and bridges room broadcasts across nodes
// through the shared Redis event bus so a message sent on one node reaches
// connections on every other node.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*connection   // connection id -> connection
	byUser      map[string][]string      // user id -> connection ids
	byRoom      map[string]map[string]bool // room id -> set of connection ids

	presence *cache.Cache
	bus      *events.RedisBus
	log      *logging.Logger
}

// NewConnectionManager wires a connection manager to the presence cache
// and cross-node event bus.
func NewConnectionManager(presence *cache.Cache, bus *events.RedisBus, log *logging.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*connection),
		byUser:      make(map[string][]string),
		byRoom:      make(map[string]map[string]bool),
		presence:    presence,
		bus:         bus,
		log:         log,
	}
}

// Connect registers a new WebSocket connection for a user and starts its
// write pump. The caller owns the read loop.
func (m *ConnectionManager) Connect(connID, userID string, ws *websocket.Conn) *connection {
	conn := &connection{
		id:     connID,
		userID: userID,
		ws:     ws,
		send:   make(chan Response, 32),
		rooms:  make(map[string]struct{}),
	}

	m.mu.Lock()
	m.connections[connID] = conn
	m.byUser[userID] = append(m.byUser[userID], connID)
	m.mu.Unlock()

	go conn.writeLoop()

	if m.presence != nil {
		m.presence.Set(presenceKey(userID), true, 5*time.Minute)
	}

	return conn
}

// Disconnect removes a connection from every index it was registered under.
func (m *ConnectionManager) Disconnect(connID string) {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.connections, connID)

	ids := m.byUser[conn.userID]
	for i, id := range ids {
		if id == connID {
			m.byUser[conn.userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.byUser[conn.userID]) == 0 {
		delete(m.byUser, conn.userID)
	}

	for roomID := range conn.rooms {
		if members := m.byRoom[roomID]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(m.byRoom, roomID)
			}
		}
	}
	m.mu.Unlock()

	close(conn.send)

	if m.presence != nil {
		m.presence.Set(lastSeenKey(conn.userID), time.Now().Format(time.RFC3339), 24*time.Hour)
	}
}

// JoinRoom adds a connection to a room's local fan-out index.
func (m *ConnectionManager) JoinRoom(connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	conn.rooms[roomID] = struct{}{}

	if m.byRoom[roomID] == nil {
		m.byRoom[roomID] = make(map[string]bool)
	}
	m.byRoom[roomID][connID] = true
}

// LeaveRoom removes a connection from a room's local fan-out index.
func (m *ConnectionManager) LeaveRoom(connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.connections[connID]; ok {
		delete(conn.rooms, roomID)
	}
	if members := m.byRoom[roomID]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.byRoom, roomID)
		}
	}
}

// roomBroadcastTopic is the single dispatcher topic carrying every room
// broadcast; the target room travels inside the payload rather than as a
// distinct topic per room, since the event filter matches whole topic
// strings and a topic-per-room would mean a dispatcher registration (and a
// Redis subscription, if this node ran one per room) that grows without
// bound.
const roomBroadcastTopic = "chat.room.broadcast"

// roomEvent is the payload carried over the room broadcast topic.
type roomEvent struct {
	RoomID        string   `json:"room_id"`
	ExcludeConnID string   `json:"exclude_conn_id"`
	Response      Response `json:"response"`
}

// BroadcastToRoom delivers resp to every connection joined to roomID on this
// node, and publishes it to every other node via the event bus so their
// local connections receive it too. exclude, if non-empty, skips that one
// connection (the sender already got an ack via a direct response).
func (m *ConnectionManager) BroadcastToRoom(ctx context.Context, roomID string, resp Response, exclude string) {
	if m.bus == nil {
		m.deliverLocal(roomID, resp, exclude)
		return
	}

	event := &events.Event{
		Topic:  roomBroadcastTopic,
		Source: "chat",
		Payload: map[string]any{
			"room_id":         roomID,
			"exclude_conn_id": exclude,
			"response":        resp,
		},
	}
	// Publish dispatches locally (which reaches this manager through its
	// registered handler) before publishing to the rest of the cluster, so
	// deliverLocal is not called a second time here.
	if err := m.bus.Publish(ctx, event); err != nil && m.log != nil {
		m.log.WithError(err).Warn("failed to publish room broadcast")
	}
}

func (m *ConnectionManager) deliverLocal(roomID string, resp Response, exclude string) {
	m.mu.RLock()
	members := m.byRoom[roomID]
	targets := make([]*connection, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if conn, ok := m.connections[connID]; ok {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		conn.deliver(resp)
	}
}

// roomBroadcastHandler adapts ConnectionManager to the events.EventHandler
// interface so the dispatcher can deliver room broadcasts (local and
// cross-node, both paths through the same queue) straight into local
// WebSocket connections.
type roomBroadcastHandler struct {
	manager *ConnectionManager
}

// NewRoomBroadcastHandler builds the dispatcher-facing handler for room
// broadcasts. Register it once per process: dispatcher.RegisterHandler("chat-room-broadcast", NewRoomBroadcastHandler(mgr)).
func NewRoomBroadcastHandler(m *ConnectionManager) events.EventHandler {
	return &roomBroadcastHandler{manager: m}
}

func (h *roomBroadcastHandler) SupportedTopics() []string  { return []string{roomBroadcastTopic} }
func (h *roomBroadcastHandler) SupportedSources() []string { return nil }

func (h *roomBroadcastHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("re-encode room event payload: %w", err)
	}
	var re roomEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return fmt.Errorf("decode room event: %w", err)
	}
	h.manager.deliverLocal(re.RoomID, re.Response, re.ExcludeConnID)
	return nil
}

// IsOnline reports whether the presence cache holds an online marker for
// the user. cmd/server passes an in-process cache, so only connections on
// this node are seen.
func (m *ConnectionManager) IsOnline(userID string) bool {
	if m.presence == nil {
		return false
	}
	_, ok := m.presence.Get(presenceKey(userID))
	return ok
}

func presenceKey(userID string) string {
	return "user:online:" + userID
}

func lastSeenKey(userID string) string {
	return "user:last_seen:" + userID
}
