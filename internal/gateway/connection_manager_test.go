package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duoeng/wordduel/internal/room"
)

func newTestManager() *ConnectionManager {
	return NewConnectionManager(DefaultConnectionConfig(), nil)
}

func attach(cm *ConnectionManager, userID, roomCode string, onClose func()) *Connection {
	conn := &Connection{
		ID:       userID + "-conn",
		UserID:   userID,
		RoomCode: roomCode,
		Send:     make(chan []byte, 16),
		Manager:  cm,
		OnClose:  onClose,
	}
	cm.registerConnection(conn)
	return conn
}

func receivedSnapshot(t *testing.T, conn *Connection) room.Snapshot {
	t.Helper()
	select {
	case payload := <-conn.Send:
		var env struct {
			Type string        `json:"type"`
			Data room.Snapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &env))
		require.Equal(t, "room_state", env.Type)
		return env.Data
	default:
		t.Fatal("expected a queued message")
		return room.Snapshot{}
	}
}

func TestBroadcastDeliversPerViewerSnapshots(t *testing.T) {
	cm := newTestManager()
	c1 := attach(cm, "p1", "ROOM0001", nil)
	c2 := attach(cm, "p2", "ROOM0001", nil)

	cm.handleBroadcast(room.Update{
		RoomCode: "ROOM0001",
		Version:  3,
		ForViewer: map[string]room.Snapshot{
			"p1": {Code: "ROOM0001", Version: 3, CurrentWordUA: "вода"},
			"p2": {Code: "ROOM0001", Version: 3},
		},
	})

	assert.Equal(t, "вода", receivedSnapshot(t, c1).CurrentWordUA)
	assert.Empty(t, receivedSnapshot(t, c2).CurrentWordUA)
}

func TestBroadcastDropsStaleVersions(t *testing.T) {
	cm := newTestManager()
	conn := attach(cm, "p1", "ROOM0001", nil)

	update := func(version int64) room.Update {
		return room.Update{
			RoomCode:  "ROOM0001",
			Version:   version,
			ForViewer: map[string]room.Snapshot{"p1": {Code: "ROOM0001", Version: version}},
		}
	}

	cm.handleBroadcast(update(5))
	cm.handleBroadcast(update(4))
	cm.handleBroadcast(update(5))
	cm.handleBroadcast(update(6))

	assert.EqualValues(t, 5, receivedSnapshot(t, conn).Version)
	assert.EqualValues(t, 6, receivedSnapshot(t, conn).Version)
	assert.Empty(t, conn.Send)
}

func TestBroadcastSkipsViewersWithoutConnections(t *testing.T) {
	cm := newTestManager()
	conn := attach(cm, "p1", "ROOM0001", nil)

	cm.handleBroadcast(room.Update{
		RoomCode:  "OTHER001",
		Version:   1,
		ForViewer: map[string]room.Snapshot{"p1": {Code: "OTHER001"}},
	})

	assert.Empty(t, conn.Send)
}

func TestUnregisterFiresOnCloseOnce(t *testing.T) {
	cm := newTestManager()
	closed := 0
	conn := attach(cm, "p1", "ROOM0001", func() { closed++ })

	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	assert.Equal(t, 1, closed)
	total, rooms := cm.Stats()
	assert.Zero(t, total)
	assert.Zero(t, rooms)
}

func TestLastVersionResetsWhenRoomEmpties(t *testing.T) {
	cm := newTestManager()
	conn := attach(cm, "p1", "ROOM0001", nil)

	cm.handleBroadcast(room.Update{
		RoomCode:  "ROOM0001",
		Version:   9,
		ForViewer: map[string]room.Snapshot{"p1": {Version: 9}},
	})
	cm.unregisterConnection(conn)

	// A fresh attachment for the same room starts from scratch, so a
	// lower version from a new room instance is not suppressed.
	conn = attach(cm, "p1", "ROOM0001", nil)
	cm.handleBroadcast(room.Update{
		RoomCode:  "ROOM0001",
		Version:   2,
		ForViewer: map[string]room.Snapshot{"p1": {Version: 2}},
	})

	assert.EqualValues(t, 2, receivedSnapshot(t, conn).Version)
}

func TestStatsCountsRoomsAndConnections(t *testing.T) {
	cm := newTestManager()
	attach(cm, "p1", "ROOM0001", nil)
	attach(cm, "p2", "ROOM0001", nil)
	attach(cm, "p3", "ROOM0002", nil)

	total, rooms := cm.Stats()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, rooms)
}
