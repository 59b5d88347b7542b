package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/matches"
	"github.com/duoeng/wordduel/internal/models"
	"github.com/duoeng/wordduel/internal/players"
	"github.com/duoeng/wordduel/internal/ratelimit"
	"github.com/duoeng/wordduel/internal/room"
)

// APIHandler serves the JSON game API.
type APIHandler struct {
	rooms   *room.App
	players *players.App
	matches *matches.Repository
	tokens  *auth.Manager
}

// NewAPIHandler creates the JSON API handler.
func NewAPIHandler(rooms *room.App, playersApp *players.App, matchesRepo *matches.Repository, tokens *auth.Manager) *APIHandler {
	return &APIHandler{
		rooms:   rooms,
		players: playersApp,
		matches: matchesRepo,
		tokens:  tokens,
	}
}

type guestRequest struct {
	Nickname string `json:"nickname"`
}

type guestResponse struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Elo      int    `json:"elo"`
	Token    string `json:"token"`
	IsAdmin  bool   `json:"is_admin"`
}

// HandleGuest registers a guest identity and returns its token.
func (h *APIHandler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	guest, err := h.players.RegisterGuest(r.Context(), req.Nickname)
	if err != nil {
		writeRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, guestResponse{
		PlayerID: guest.Stats.PlayerID,
		Nickname: guest.Stats.Nickname,
		Elo:      guest.Stats.Elo,
		Token:    guest.Token,
		IsAdmin:  guest.IsAdmin,
	})
}

type createRoomRequest struct {
	Mode        string `json:"mode"`
	TargetScore int    `json:"target_score"`
}

// HandleCreateRoom allocates a waiting room for the caller.
func (h *APIHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.rooms.CreateRoom(r.Context(), identity.PlayerID, models.GameMode(req.Mode), req.TargetScore, clientIP(r))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

type joinRoomRequest struct {
	RoomCode string `json:"room_code"`
}

// HandleJoinRoom adds the caller to a room; the second join starts the
// match.
func (h *APIHandler) HandleJoinRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.rooms.Join(r.Context(), req.RoomCode, identity.PlayerID, clientIP(r))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type submitRequest struct {
	RoomCode string `json:"room_code"`
	Answer   string `json:"answer"`
}

// HandleSubmit resolves the caller's live turn.
func (h *APIHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.rooms.Submit(r.Context(), req.RoomCode, identity.PlayerID, req.Answer, clientIP(r))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRoomState serves the caller's redacted snapshot for polling.
func (h *APIHandler) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	snap, err := h.rooms.State(r.Context(), code, identity.PlayerID, clientIP(r))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type leaderboardEntry struct {
	PlayerID        string  `json:"player_id"`
	Nickname        string  `json:"nickname"`
	Elo             int     `json:"elo"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	TotalGames      int     `json:"total_games"`
	WinRate         float64 `json:"win_rate"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// HandleLeaderboard serves the top players by rating.
func (h *APIHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	stats, err := h.players.Leaderboard(r.Context(), limit)
	if err != nil {
		writeRoomError(w, err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(stats))
	for _, s := range stats {
		entries = append(entries, leaderboardEntry{
			PlayerID:        s.PlayerID,
			Nickname:        s.Nickname,
			Elo:             s.Elo,
			Wins:            s.Wins,
			Losses:          s.Losses,
			TotalGames:      s.TotalGames,
			WinRate:         s.WinRate(),
			AvgResponseTime: s.AvgResponseTime(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleMe serves the caller's own aggregates.
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	stats, err := h.players.GetStats(r.Context(), identity.PlayerID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardEntry{
		PlayerID:        stats.PlayerID,
		Nickname:        stats.Nickname,
		Elo:             stats.Elo,
		Wins:            stats.Wins,
		Losses:          stats.Losses,
		TotalGames:      stats.TotalGames,
		WinRate:         stats.WinRate(),
		AvgResponseTime: stats.AvgResponseTime(),
	})
}

// HandleMatch serves one finished match's record.
func (h *APIHandler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	matchID, err := uuid.Parse(r.URL.Query().Get("match_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match_id")
		return
	}

	record, err := h.matches.GetMatchRecord(r.Context(), matchID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleMatchMoves serves a finished match's move history.
func (h *APIHandler) HandleMatchMoves(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	matchID, err := uuid.Parse(r.URL.Query().Get("match_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match_id")
		return
	}

	moves, err := h.matches.MovesForMatch(r.Context(), matchID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

func (h *APIHandler) authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing authorization")
		return auth.Identity{}, false
	}
	identity, err := h.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return auth.Identity{}, false
	}
	return identity, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeRoomError maps domain errors onto HTTP statuses.
func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, players.ErrPlayerNotFound),
		errors.Is(err, matches.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, room.ErrRoomFull),
		errors.Is(err, room.ErrRoomNotJoinable),
		errors.Is(err, room.ErrRoomNotPlaying):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, room.ErrNotYourTurn),
		errors.Is(err, room.ErrNotInRoom),
		errors.Is(err, ratelimit.ErrBanned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, room.ErrStaleTurn),
		errors.Is(err, players.ErrNicknameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, room.ErrInvalidMode),
		errors.Is(err, players.ErrNicknameTooShort):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ratelimit.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, room.ErrCodeExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
