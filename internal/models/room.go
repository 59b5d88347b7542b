package models

import (
	"time"

	"github.com/google/uuid"
)

// GameMode determines whether turns carry a server-side deadline.
type GameMode string

const (
	GameModeClassic   GameMode = "classic"
	GameModeChallenge GameMode = "challenge"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
)

// Room is the mutable state of one game session between two players.
// All access is serialized by the owning registry entry; Room itself
// carries no locking.
type Room struct {
	Code             string     `json:"code"`
	Mode             GameMode   `json:"mode"`
	TargetScore      int        `json:"target_score"`
	Status           RoomStatus `json:"status"`
	Players          []*Player  `json:"players"`
	CurrentTurnIndex int        `json:"current_turn_index"`
	TurnNumber       int        `json:"turn_number"`
	CurrentWord      *Word      `json:"current_word,omitempty"`
	TurnStartedAt    *time.Time `json:"turn_started_at,omitempty"`
	TurnDeadline     *time.Time `json:"turn_deadline,omitempty"`
	Version          int64      `json:"version"`
	MatchID          uuid.UUID  `json:"match_id"`
	WinnerID         string     `json:"winner_id,omitempty"`
	LastMove         *Move      `json:"last_move,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// CurrentPlayer returns the player on turn, or nil while not playing.
func (r *Room) CurrentPlayer() *Player {
	if r.Status != RoomStatusPlaying {
		return nil
	}
	if r.CurrentTurnIndex < 0 || r.CurrentTurnIndex >= len(r.Players) {
		return nil
	}
	return r.Players[r.CurrentTurnIndex]
}

// PlayerByID returns the room member with the given user id, or nil.
func (r *Room) PlayerByID(userID string) *Player {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// OtherPlayer returns the opponent of the given user, or nil.
func (r *Room) OtherPlayer(userID string) *Player {
	for _, p := range r.Players {
		if p.UserID != userID {
			return p
		}
	}
	return nil
}
