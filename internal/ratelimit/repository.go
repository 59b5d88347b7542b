package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the Postgres ban store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a ban Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// IsBanned reports whether the entity has a ban that has not expired.
func (r *Repository) IsBanned(ctx context.Context, entityType, entityID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bans
			WHERE entity_type = $1 AND entity_id = $2 AND banned_until > NOW()
		)`

	var banned bool
	if err := r.db.QueryRowContext(ctx, query, entityType, entityID).Scan(&banned); err != nil {
		return false, fmt.Errorf("failed to query bans for %s %s: %w", entityType, entityID, err)
	}
	return banned, nil
}

// CreateBan inserts a temporary ban row.
func (r *Repository) CreateBan(ctx context.Context, entityType, entityID, reason string, bannedUntil time.Time) error {
	query := `
		INSERT INTO bans (id, entity_type, entity_id, reason, banned_until, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	if _, err := r.db.ExecContext(ctx, query, uuid.New(), entityType, entityID, reason, bannedUntil); err != nil {
		return fmt.Errorf("failed to insert ban for %s %s: %w", entityType, entityID, err)
	}
	return nil
}

// CountRecentWins counts matches winner won against loser since the
// cutoff, in either seat.
func (r *Repository) CountRecentWins(ctx context.Context, winnerID, loserID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM matches
		WHERE winner_id = $1
		  AND finished_at >= $2
		  AND ((player_a = $1 AND player_b = $3) OR (player_a = $3 AND player_b = $1))`

	var count int
	if err := r.db.QueryRowContext(ctx, query, winnerID, since, loserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent wins for %s: %w", winnerID, err)
	}
	return count, nil
}
