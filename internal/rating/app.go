package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/models"
)

// PlayerRepository reads player aggregates for delta computation.
// Per-move response-time accumulation happens elsewhere.
type PlayerRepository interface {
	GetStats(ctx context.Context, playerID string) (*models.PlayerStats, error)
}

// OutcomeStore commits a finished match durably. Implementations must
// apply the whole outcome atomically: both rating updates and the match
// record, or nothing.
type OutcomeStore interface {
	ApplyMatchOutcome(ctx context.Context, outcome models.MatchOutcome) error
}

// App computes and persists rating outcomes at game completion.
type App struct {
	players PlayerRepository
	store   OutcomeStore
	kFactor int
}

// NewApp creates a rating App with the given K-factor.
func NewApp(players PlayerRepository, store OutcomeStore, kFactor int) *App {
	if kFactor <= 0 {
		kFactor = DefaultKFactor
	}
	return &App{
		players: players,
		store:   store,
		kFactor: kFactor,
	}
}

// FinalizeMatch computes ELO deltas for a decided room, then commits
// both players' aggregates and the match record as one atomic outcome.
// The write is retried once and then propagated; a failed finalization
// applies nothing, so a retried call never double-counts the match.
func (a *App) FinalizeMatch(ctx context.Context, room *models.Room, winnerID string, finishedAt time.Time) (models.MatchRecord, error) {
	winner := room.PlayerByID(winnerID)
	loser := room.OtherPlayer(winnerID)
	if winner == nil || loser == nil {
		return models.MatchRecord{}, fmt.Errorf("room %s is missing a player for finalization", room.Code)
	}

	winnerStats, err := a.players.GetStats(ctx, winner.UserID)
	if err != nil {
		return models.MatchRecord{}, fmt.Errorf("failed to load winner stats: %w", err)
	}
	loserStats, err := a.players.GetStats(ctx, loser.UserID)
	if err != nil {
		return models.MatchRecord{}, fmt.Errorf("failed to load loser stats: %w", err)
	}

	deltas := MatchDeltas(winnerStats.Elo, loserStats.Elo, a.kFactor)

	startedAt := room.CreatedAt
	if room.StartedAt != nil {
		startedAt = *room.StartedAt
	}

	record := models.MatchRecord{
		ID:         room.MatchID,
		RoomCode:   room.Code,
		PlayerA:    room.Players[0].UserID,
		PlayerB:    room.Players[1].UserID,
		ScoreA:     room.Players[0].Score,
		ScoreB:     room.Players[1].Score,
		WinnerID:   winnerID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
		TotalMoves: room.TurnNumber,
	}
	if room.Players[0].UserID == winnerID {
		record.EloDeltaA, record.EloDeltaB = deltas.Winner, deltas.Loser
	} else {
		record.EloDeltaA, record.EloDeltaB = deltas.Loser, deltas.Winner
	}

	outcome := models.MatchOutcome{
		Record:    record,
		WinnerID:  winner.UserID,
		WinnerElo: winnerStats.Elo + deltas.Winner,
		LoserID:   loser.UserID,
		LoserElo:  loserStats.Elo + deltas.Loser,
	}
	if err := retryOnce(func() error {
		return a.store.ApplyMatchOutcome(ctx, outcome)
	}); err != nil {
		return models.MatchRecord{}, fmt.Errorf("failed to persist match outcome: %w", err)
	}

	log.Info().
		Str("room_code", room.Code).
		Str("winner_id", winnerID).
		Str("match_id", record.ID.String()).
		Int("delta", deltas.Winner).
		Msg("match finalized")
	return record, nil
}

func retryOnce(fn func() error) error {
	if err := fn(); err != nil {
		log.Warn().Err(err).Msg("persistence write failed, retrying once")
		return fn()
	}
	return nil
}
