package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/internal/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler exposes the chat WebSocket endpoint over net/http.
type Handler struct {
	service *Service
	conns   *ConnectionManager
	jwt     *security.JWTManager
	log     *logging.Logger
}

// NewHandler builds the HTTP entry point for the WebSocket chat surface.
func NewHandler(service *Service, conns *ConnectionManager, jwt *security.JWTManager, log *logging.Logger) *Handler {
	return &Handler{service: service, conns: conns, jwt: jwt, log: log}
}

// ServeWS upgrades the connection, authenticates the caller from the bearer
// token carried in the "token" query parameter (browsers cannot set
// Authorization headers on a WebSocket handshake), then runs the read loop
// until the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.jwt.Verify(r.URL.Query().Get("token"), "access")
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}

	connID := uuid.NewString()
	userID := claims.UserID
	conn := h.conns.Connect(connID, userID, ws)
	defer h.conns.Disconnect(connID)

	conn.deliver(ok(ResponseConnected, map[string]interface{}{
		"user_id":       userID,
		"connection_id": connID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}))

	h.readLoop(r.Context(), connID, userID, ws)
}

func (h *Handler) readLoop(ctx context.Context, connID, userID string, ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		// Every inbound frame counts as activity and renews the online marker.
		if h.conns.presence != nil {
			h.conns.presence.Set(presenceKey(userID), true, 5*time.Minute)
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			if h.log != nil {
				h.log.WithError(err).Warn("discarding malformed chat command")
			}
			continue
		}

		resp := h.service.HandleCommand(ctx, connID, userID, &cmd)
		h.deliverDirect(connID, resp)
	}
}

// deliverDirect writes a direct (non-broadcast) response back to the
// originating connection by routing it through the connection manager's
// local delivery path.
func (h *Handler) deliverDirect(connID string, resp Response) {
	h.conns.mu.RLock()
	conn, ok := h.conns.connections[connID]
	h.conns.mu.RUnlock()
	if ok {
		conn.deliver(resp)
	}
}
