package room

import (
	"errors"
	"time"
)

// Mutation rejections. These never corrupt room state; a rejected
// submit leaves the turn live.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomNotJoinable = errors.New("room is not joinable")
	ErrNotInRoom       = errors.New("player is not in this room")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrRoomNotPlaying  = errors.New("match is not active")
	ErrStaleTurn       = errors.New("turn already resolved")
	ErrCodeExhausted   = errors.New("could not allocate unique room code")
	ErrInvalidMode     = errors.New("unknown game mode")
)

// Config holds the game engine knobs.
type Config struct {
	TurnTimeout        time.Duration
	TargetScoreDefault int
	TargetScoreMax     int
	CodeLength         int
	CodeAttempts       int
	FinishedRetention  time.Duration
	WaitingIdleTimeout time.Duration
	SweepInterval      time.Duration
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		TurnTimeout:        30 * time.Second,
		TargetScoreDefault: 10,
		TargetScoreMax:     100,
		CodeLength:         8,
		CodeAttempts:       12,
		FinishedRetention:  10 * time.Minute,
		WaitingIdleTimeout: 30 * time.Minute,
		SweepInterval:      time.Minute,
	}
}
