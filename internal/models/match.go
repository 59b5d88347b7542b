package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchRecord is written once when a room transitions to finished and
// never mutated afterwards.
type MatchRecord struct {
	ID          uuid.UUID     `json:"id"`
	RoomCode    string        `json:"room_code"`
	PlayerA     string        `json:"player_a"`
	PlayerB     string        `json:"player_b"`
	ScoreA      int           `json:"score_a"`
	ScoreB      int           `json:"score_b"`
	WinnerID    string        `json:"winner_id"`
	EloDeltaA   int           `json:"elo_delta_a"`
	EloDeltaB   int           `json:"elo_delta_b"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	TotalMoves  int           `json:"total_moves"`
}

// IsZero reports whether the record was never populated.
func (m MatchRecord) IsZero() bool {
	return m.ID == uuid.Nil
}

// MatchOutcome bundles everything a finished match commits durably:
// the record plus both players' post-match ratings. Stores must apply
// it atomically so a failed finalization leaves no rating applied.
type MatchOutcome struct {
	Record    MatchRecord
	WinnerID  string
	WinnerElo int
	LoserID   string
	LoserElo  int
}
