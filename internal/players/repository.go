package players

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/duoeng/wordduel/internal/models"
)

var (
	// ErrPlayerNotFound is returned when a player ID has no row.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrNicknameTaken is returned when an insert hits the nickname
	// unique constraint.
	ErrNicknameTaken = errors.New("nickname already taken")
)

const uniqueViolation = "23505"

// Repository persists player aggregates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a players Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePlayer inserts a fresh player row with the starting rating.
func (r *Repository) CreatePlayer(ctx context.Context, playerID, nickname string, elo int) error {
	query := `
		INSERT INTO players (
			id, nickname, elo, wins, losses,
			total_games, total_response_time, total_moves, created_at
		) VALUES ($1, $2, $3, 0, 0, 0, 0, 0, NOW())`

	if _, err := r.db.ExecContext(ctx, query, playerID, nickname, elo); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("nickname %q: %w", nickname, ErrNicknameTaken)
		}
		return fmt.Errorf("failed to create player %s: %w", playerID, err)
	}
	return nil
}

// GetStats loads one player's aggregate record.
func (r *Repository) GetStats(ctx context.Context, playerID string) (*models.PlayerStats, error) {
	query := `
		SELECT id, nickname, elo, wins, losses,
		       total_games, total_moves, total_response_time, created_at
		FROM players
		WHERE id = $1`

	var stats models.PlayerStats
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&stats.PlayerID,
		&stats.Nickname,
		&stats.Elo,
		&stats.Wins,
		&stats.Losses,
		&stats.TotalGames,
		&stats.TotalMoves,
		&stats.TotalResponseTime,
		&stats.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for %s: %w", playerID, err)
	}
	return &stats, nil
}

// Exists reports whether a player row is present.
func (r *Repository) Exists(ctx context.Context, playerID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, playerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check player %s: %w", playerID, err)
	}
	return exists, nil
}

// RecordMove accumulates one move's response time into the aggregates.
func (r *Repository) RecordMove(ctx context.Context, playerID string, responseSeconds float64) error {
	query := `
		UPDATE players
		SET total_response_time = total_response_time + $2,
		    total_moves = total_moves + 1
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, playerID, responseSeconds); err != nil {
		return fmt.Errorf("failed to record move for %s: %w", playerID, err)
	}
	return nil
}

// Leaderboard returns the top players by rating, wins breaking ties and
// account age breaking those.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	query := `
		SELECT id, nickname, elo, wins, losses,
		       total_games, total_moves, total_response_time, created_at
		FROM players
		ORDER BY elo DESC, wins DESC, created_at ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.PlayerStats
	for rows.Next() {
		var stats models.PlayerStats
		if err := rows.Scan(
			&stats.PlayerID,
			&stats.Nickname,
			&stats.Elo,
			&stats.Wins,
			&stats.Losses,
			&stats.TotalGames,
			&stats.TotalMoves,
			&stats.TotalResponseTime,
			&stats.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard rows: %w", err)
	}
	return entries, nil
}
