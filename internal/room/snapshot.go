package room

import (
	"time"

	"github.com/duoeng/wordduel/internal/models"
)

// PlayerView is the public view of one room member.
type PlayerView struct {
	UserID        string `json:"user_id"`
	Nickname      string `json:"nickname"`
	Score         int    `json:"score"`
	Elo           int    `json:"elo"`
	Connected     bool   `json:"connected"`
	IsCurrentTurn bool   `json:"is_current_turn"`
}

// LastMoveView is feedback about the most recently resolved turn.
type LastMoveView struct {
	PlayerID  string `json:"player_id"`
	WordUA    string `json:"word_ua"`
	CorrectEN string `json:"correct_en"`
	Answer    string `json:"answer"`
	Points    int    `json:"points"`
	Status    string `json:"status"`
}

// Snapshot is the immutable per-viewer view of a room, tagged with the
// version it was produced at. The prompt word is redacted for everyone
// but the player on turn.
type Snapshot struct {
	Code          string            `json:"code"`
	Mode          models.GameMode   `json:"mode"`
	TargetScore   int               `json:"target_score"`
	Status        models.RoomStatus `json:"status"`
	Version       int64             `json:"version"`
	TurnNumber    int               `json:"turn_number"`
	Players       []PlayerView      `json:"players"`
	CurrentWordUA string            `json:"current_word_ua,omitempty"`
	TimeRemaining *int              `json:"time_remaining,omitempty"`
	WinnerID      string            `json:"winner_id,omitempty"`
	LastMove      *LastMoveView     `json:"last_move,omitempty"`
}

// BuildSnapshot renders the room for one viewer at the given instant.
func BuildSnapshot(room *models.Room, viewerID string, now time.Time) Snapshot {
	current := room.CurrentPlayer()

	snap := Snapshot{
		Code:        room.Code,
		Mode:        room.Mode,
		TargetScore: room.TargetScore,
		Status:      room.Status,
		Version:     room.Version,
		TurnNumber:  room.TurnNumber,
		WinnerID:    room.WinnerID,
		Players:     make([]PlayerView, 0, len(room.Players)),
	}

	for _, p := range room.Players {
		snap.Players = append(snap.Players, PlayerView{
			UserID:        p.UserID,
			Nickname:      p.Nickname,
			Score:         p.Score,
			Elo:           p.Elo,
			Connected:     p.Connected,
			IsCurrentTurn: current != nil && current.UserID == p.UserID,
		})
	}

	if current != nil && current.UserID == viewerID && room.CurrentWord != nil {
		snap.CurrentWordUA = room.CurrentWord.UA
	}

	if room.Status == models.RoomStatusPlaying && room.TurnDeadline != nil {
		remaining := int(room.TurnDeadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		snap.TimeRemaining = &remaining
	}

	if room.LastMove != nil {
		status := "completed"
		if room.LastMove.IsTimeout {
			status = "expired"
		}
		answer := room.LastMove.Answer
		if answer == "" {
			answer = "(no answer)"
		}
		snap.LastMove = &LastMoveView{
			PlayerID:  room.LastMove.PlayerID,
			WordUA:    room.LastMove.WordUA,
			CorrectEN: room.LastMove.CorrectEN,
			Answer:    answer,
			Points:    room.LastMove.Points,
			Status:    status,
		}
	}

	return snap
}

// Update carries the per-viewer snapshots produced by one accepted
// mutation. Gateways deliver ForViewer[userID] to that player's
// connections.
type Update struct {
	RoomCode  string
	Version   int64
	ForViewer map[string]Snapshot
}

// Broadcaster receives one Update per accepted mutation, in order.
type Broadcaster interface {
	Publish(update Update)
}
