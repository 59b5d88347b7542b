package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreClass is the quality classification of a submitted answer.
type ScoreClass string

const (
	ScoreExact   ScoreClass = "exact"
	ScorePartial ScoreClass = "partial"
	ScoreWrong   ScoreClass = "wrong"
)

// Scoring sources. Cache hits report the source the result was first
// produced with, verbatim.
const (
	SourceLocal           = "local"
	SourceLLM             = "llm"
	SourceFallbackTimeout = "fallback_timeout"
	SourceFallbackError   = "fallback_error"
	SourceTimeout         = "timeout"
)

// Move is one resolved turn folded into room history.
type Move struct {
	ID           uuid.UUID  `json:"id"`
	MatchID      uuid.UUID  `json:"match_id"`
	RoomCode     string     `json:"room_code"`
	TurnNumber   int        `json:"turn_number"`
	PlayerID     string     `json:"player_id"`
	WordUA       string     `json:"word_ua"`
	CorrectEN    string     `json:"correct_en"`
	Answer       string     `json:"answer"`
	Points       int        `json:"points"`
	Class        ScoreClass `json:"class"`
	Source       string     `json:"source"`
	ResponseTime float64    `json:"response_time"`
	IsTimeout    bool       `json:"is_timeout"`
	CreatedAt    time.Time  `json:"created_at"`
}
