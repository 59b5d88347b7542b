package matches

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/duoeng/wordduel/internal/models"
)

// ErrMatchNotFound is returned when a match ID has no row.
var ErrMatchNotFound = errors.New("match not found")

// matchDetails is the free-form JSONB blob stored with each match.
type matchDetails struct {
	DurationSeconds float64 `json:"duration_seconds"`
	TotalMoves      int     `json:"total_moves"`
}

// Repository persists finished matches and their move history.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a matches Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ApplyMatchOutcome commits a finished match in one transaction: the
// winner's and loser's rating updates and the immutable match record
// either all land or none do, so a retried finalization always starts
// from unchanged ratings.
func (r *Repository) ApplyMatchOutcome(ctx context.Context, outcome models.MatchOutcome) error {
	record := outcome.Record
	details, err := marshalDetails(record)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outcome transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyPlayerResult(ctx, tx, outcome.WinnerID, outcome.WinnerElo, true); err != nil {
		return err
	}
	if err := applyPlayerResult(ctx, tx, outcome.LoserID, outcome.LoserElo, false); err != nil {
		return err
	}

	query := `
		INSERT INTO matches (
			id, room_code, player_a, player_b, score_a, score_b,
			winner_id, elo_delta_a, elo_delta_b, started_at, finished_at, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if _, err := tx.ExecContext(ctx, query,
		record.ID,
		record.RoomCode,
		record.PlayerA,
		record.PlayerB,
		record.ScoreA,
		record.ScoreB,
		record.WinnerID,
		record.EloDeltaA,
		record.EloDeltaB,
		record.StartedAt,
		record.FinishedAt,
		details,
	); err != nil {
		return fmt.Errorf("failed to save match %s: %w", record.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match %s: %w", record.ID, err)
	}
	return nil
}

func applyPlayerResult(ctx context.Context, tx *sql.Tx, playerID string, newElo int, won bool) error {
	query := `
		UPDATE players
		SET elo = $2,
		    wins = wins + CASE WHEN $3 THEN 1 ELSE 0 END,
		    losses = losses + CASE WHEN $3 THEN 0 ELSE 1 END,
		    total_games = total_games + 1
		WHERE id = $1`

	result, err := tx.ExecContext(ctx, query, playerID, newElo, won)
	if err != nil {
		return fmt.Errorf("failed to apply match result for %s: %w", playerID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", playerID, err)
	}
	if rows == 0 {
		return fmt.Errorf("player %s has no row to finalize", playerID)
	}
	return nil
}

// GetMatchRecord loads one finished match.
func (r *Repository) GetMatchRecord(ctx context.Context, matchID uuid.UUID) (*models.MatchRecord, error) {
	query := `
		SELECT id, room_code, player_a, player_b, score_a, score_b,
		       winner_id, elo_delta_a, elo_delta_b, started_at, finished_at, details
		FROM matches
		WHERE id = $1`

	var record models.MatchRecord
	var details pqtype.NullRawMessage
	err := r.db.QueryRowContext(ctx, query, matchID).Scan(
		&record.ID,
		&record.RoomCode,
		&record.PlayerA,
		&record.PlayerB,
		&record.ScoreA,
		&record.ScoreB,
		&record.WinnerID,
		&record.EloDeltaA,
		&record.EloDeltaB,
		&record.StartedAt,
		&record.FinishedAt,
		&details,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrMatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}

	if details.Valid {
		var blob matchDetails
		if err := json.Unmarshal(details.RawMessage, &blob); err != nil {
			return nil, fmt.Errorf("failed to decode details for match %s: %w", matchID, err)
		}
		record.Duration = time.Duration(blob.DurationSeconds * float64(time.Second))
		record.TotalMoves = blob.TotalMoves
	}
	return &record, nil
}

// SaveMove appends one resolved turn to the match history.
func (r *Repository) SaveMove(ctx context.Context, move models.Move) error {
	query := `
		INSERT INTO moves (
			id, match_id, room_code, turn_number, player_id,
			ua_word, correct_answer, user_answer, score_awarded,
			classification, scoring_source, response_time, is_timeout, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := r.db.ExecContext(ctx, query,
		move.ID,
		move.MatchID,
		move.RoomCode,
		move.TurnNumber,
		move.PlayerID,
		move.WordUA,
		move.CorrectEN,
		move.Answer,
		move.Points,
		string(move.Class),
		move.Source,
		move.ResponseTime,
		move.IsTimeout,
		move.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to save move %s: %w", move.ID, err)
	}
	return nil
}

// MovesForMatch returns the match history in turn order.
func (r *Repository) MovesForMatch(ctx context.Context, matchID uuid.UUID) ([]models.Move, error) {
	query := `
		SELECT id, match_id, room_code, turn_number, player_id,
		       ua_word, correct_answer, user_answer, score_awarded,
		       classification, scoring_source, response_time, is_timeout, created_at
		FROM moves
		WHERE match_id = $1
		ORDER BY turn_number ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query moves for match %s: %w", matchID, err)
	}
	defer rows.Close()

	var moves []models.Move
	for rows.Next() {
		var move models.Move
		var class string
		if err := rows.Scan(
			&move.ID,
			&move.MatchID,
			&move.RoomCode,
			&move.TurnNumber,
			&move.PlayerID,
			&move.WordUA,
			&move.CorrectEN,
			&move.Answer,
			&move.Points,
			&class,
			&move.Source,
			&move.ResponseTime,
			&move.IsTimeout,
			&move.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan move row: %w", err)
		}
		move.Class = models.ScoreClass(class)
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read move rows: %w", err)
	}
	return moves, nil
}

func marshalDetails(record models.MatchRecord) (pqtype.NullRawMessage, error) {
	raw, err := json.Marshal(matchDetails{
		DurationSeconds: record.Duration.Seconds(),
		TotalMoves:      record.TotalMoves,
	})
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode details for match %s: %w", record.ID, err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
