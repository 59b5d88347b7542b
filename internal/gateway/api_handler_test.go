package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/players"
	"github.com/duoeng/wordduel/internal/ratelimit"
	"github.com/duoeng/wordduel/internal/room"
)

func newGuestHandler(t *testing.T) (*APIHandler, sqlmock.Sqlmock, *auth.Manager) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := auth.NewManager("test-secret", time.Hour, clockwork.NewFakeClock())
	app := players.NewApp(players.NewRepository(db), tokens, nil)
	return NewAPIHandler(nil, app, nil, tokens), mock, tokens
}

func TestHandleGuestRegisters(t *testing.T) {
	handler, mock, tokens := newGuestHandler(t)

	mock.ExpectExec("INSERT INTO players").
		WithArgs(sqlmock.AnyArg(), "ana", 1000).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, nickname").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "nickname", "elo", "wins", "losses",
			"total_games", "total_moves", "total_response_time", "created_at",
		}).AddRow("p1", "ana", 1000, 0, 0, 0, 0, 0.0, time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/guest", strings.NewReader(`{"nickname":"ana"}`))
	rec := httptest.NewRecorder()
	handler.HandleGuest(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp guestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ana", resp.Nickname)
	assert.Equal(t, 1000, resp.Elo)

	identity, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana", identity.Nickname)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGuestRejectsShortNickname(t *testing.T) {
	handler, _, _ := newGuestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/guest", strings.NewReader(`{"nickname":"a"}`))
	rec := httptest.NewRecorder()
	handler.HandleGuest(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlersRequireAuthorization(t *testing.T) {
	handler, _, _ := newGuestHandler(t)

	endpoints := []http.HandlerFunc{
		handler.HandleCreateRoom,
		handler.HandleJoinRoom,
		handler.HandleSubmit,
		handler.HandleRoomState,
		handler.HandleMe,
		handler.HandleMatch,
		handler.HandleMatchMoves,
	}
	for _, endpoint := range endpoints {
		req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		endpoint(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestHandlersRejectExpiredToken(t *testing.T) {
	handler, _, _ := newGuestHandler(t)

	clock := clockwork.NewFakeClock()
	expired := auth.NewManager("test-secret", time.Minute, clock)
	token, err := expired.Mint("p1", "ana", false)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	// The handler's manager shares the secret but uses an unexpired
	// clock, so only the expiry can fail verification.
	handler.tokens = expired

	req := httptest.NewRequest(http.MethodGet, "/api/players/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.HandleMe(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteRoomErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{room.ErrRoomNotFound, http.StatusNotFound},
		{players.ErrPlayerNotFound, http.StatusNotFound},
		{room.ErrRoomFull, http.StatusBadRequest},
		{room.ErrRoomNotJoinable, http.StatusBadRequest},
		{room.ErrNotYourTurn, http.StatusForbidden},
		{room.ErrNotInRoom, http.StatusForbidden},
		{ratelimit.ErrBanned, http.StatusForbidden},
		{room.ErrStaleTurn, http.StatusConflict},
		{players.ErrNicknameTaken, http.StatusConflict},
		{room.ErrInvalidMode, http.StatusUnprocessableEntity},
		{ratelimit.ErrRateLimited, http.StatusTooManyRequests},
		{room.ErrCodeExhausted, http.StatusServiceUnavailable},
		{sql.ErrConnDone, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeRoomError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, "unexpected status for %v", tc.err)
	}

	// Wrapped errors map the same as their sentinels.
	rec := httptest.NewRecorder()
	writeRoomError(rec, errors.Join(errors.New("context"), room.ErrStaleTurn))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4411"
	assert.Equal(t, "10.0.0.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
