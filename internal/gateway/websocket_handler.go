package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/room"
)

// SocketLimiter bounds per-player message rates on the socket.
type SocketLimiter interface {
	AllowSocketMessage(playerID string) bool
}

// WebSocketHandler upgrades room connections and routes messages the
// client sends over them.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             *room.App
	tokens            *auth.Manager
	limiter           SocketLimiter
}

// NewWebSocketHandler creates a WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, rooms *room.App, tokens *auth.Manager, limiter SocketLimiter) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
		tokens:            tokens,
		limiter:           limiter,
	}
}

// HandleRoomConnection authenticates the caller, checks room
// membership and upgrades to a WebSocket. The player is marked
// reconnected while attached and disconnected when the socket drops.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	// Browsers cannot set headers on WebSocket dials, so the token may
	// arrive as a query parameter instead.
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		var err error
		tokenString, err = auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
	}

	identity, err := h.tokens.Verify(tokenString)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if _, err := h.rooms.State(r.Context(), code, identity.PlayerID, clientIP(r)); err != nil {
		writeRoomError(w, err)
		return
	}

	onClose := func() {
		if err := h.rooms.Leave(context.Background(), code, identity.PlayerID); err != nil {
			log.Debug().Err(err).Str("room_code", code).Msg("failed to mark player disconnected")
		}
	}

	if err := h.connectionManager.UpgradeConnection(w, r, identity.PlayerID, code, onClose); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to upgrade WebSocket connection")
		return
	}

	if err := h.rooms.Reconnect(r.Context(), code, identity.PlayerID); err != nil {
		log.Debug().Err(err).Str("room_code", code).Msg("failed to mark player connected")
	}
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, _ *http.Request) {
	total, rooms := h.connectionManager.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": total,
		"active_rooms":      rooms,
	})
}

type clientMessage struct {
	Action string `json:"action"`
	Answer string `json:"answer"`
}

// HandleClientMessage implements ClientMessageHandler: answers may be
// submitted over the socket instead of HTTP.
func (h *WebSocketHandler) HandleClientMessage(ctx context.Context, roomCode, userID string, message []byte) {
	if h.limiter != nil && !h.limiter.AllowSocketMessage(userID) {
		log.Warn().Str("user_id", userID).Msg("socket message budget exceeded, dropping")
		return
	}

	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("unparseable client message")
		return
	}

	switch msg.Action {
	case "submit":
		if _, err := h.rooms.Submit(ctx, roomCode, userID, msg.Answer, ""); err != nil {
			// Rejections are reflected back through the next state push;
			// nothing to do here beyond logging.
			log.Debug().Err(err).Str("room_code", roomCode).Str("user_id", userID).Msg("socket submit rejected")
		}
	case "ping", "":
	default:
		log.Debug().Str("action", msg.Action).Str("user_id", userID).Msg("unknown client action")
	}
}
