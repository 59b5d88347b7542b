package words

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/duoeng/wordduel/internal/models"
)

// ErrNoWords is returned when the dictionary has no candidate rows.
var ErrNoWords = errors.New("no words available")

// Repository reads the words dictionary from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a words Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RandomWord returns a uniformly random dictionary word, skipping the
// excluded IDs. An empty exclusion list draws from the full dictionary.
func (r *Repository) RandomWord(ctx context.Context, excludeIDs []string) (*models.Word, error) {
	query := `
		SELECT id, ua, en, level
		FROM words
		WHERE NOT (id = ANY($1))
		ORDER BY RANDOM()
		LIMIT 1`

	if excludeIDs == nil {
		excludeIDs = []string{}
	}

	var word models.Word
	err := r.db.QueryRowContext(ctx, query, pq.Array(excludeIDs)).
		Scan(&word.ID, &word.UA, &word.EN, &word.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWords
	}
	if err != nil {
		return nil, fmt.Errorf("failed to draw random word: %w", err)
	}
	return &word, nil
}

// Count returns the dictionary size.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM words").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count words: %w", err)
	}
	return count, nil
}

// Insert upserts one dictionary word.
func (r *Repository) Insert(ctx context.Context, word models.Word) error {
	query := `
		INSERT INTO words (id, ua, en, level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET ua = EXCLUDED.ua, en = EXCLUDED.en, level = EXCLUDED.level`

	if _, err := r.db.ExecContext(ctx, query, word.ID, word.UA, word.EN, word.Level); err != nil {
		return fmt.Errorf("failed to insert word %s: %w", word.ID, err)
	}
	return nil
}
