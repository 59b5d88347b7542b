package players

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/models"
)

// ErrNicknameTooShort is returned for nicknames under two characters.
var ErrNicknameTooShort = errors.New("nickname too short")

const (
	defaultElo        = 1000
	maxSuffixAttempts = 20
	maxLeaderboard    = 100
)

// Guest is a freshly registered player with their session token.
type Guest struct {
	Stats   *models.PlayerStats
	Token   string
	IsAdmin bool
}

// App manages guest identities and player aggregates.
type App struct {
	repo   *Repository
	tokens *auth.Manager
	admins map[string]bool
}

// NewApp creates a players App. adminNicknames grants the admin claim
// to matching guests, compared case-insensitively.
func NewApp(repo *Repository, tokens *auth.Manager, adminNicknames []string) *App {
	admins := make(map[string]bool, len(adminNicknames))
	for _, name := range adminNicknames {
		admins[strings.ToLower(name)] = true
	}
	return &App{
		repo:   repo,
		tokens: tokens,
		admins: admins,
	}
}

// RegisterGuest creates a player for the nickname and mints a token.
// On a nickname collision a random four digit suffix is appended and
// the insert retried a bounded number of times.
func (a *App) RegisterGuest(ctx context.Context, nickname string) (*Guest, error) {
	candidate := strings.TrimSpace(nickname)
	if len([]rune(candidate)) < 2 {
		return nil, ErrNicknameTooShort
	}

	playerID := uuid.New().String()
	finalName := candidate
	for attempt := 0; ; attempt++ {
		err := a.repo.CreatePlayer(ctx, playerID, finalName, defaultElo)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNicknameTaken) {
			return nil, err
		}
		if attempt >= maxSuffixAttempts {
			return nil, fmt.Errorf("nickname %q: %w", candidate, ErrNicknameTaken)
		}
		finalName = fmt.Sprintf("%s%d", candidate, rand.Intn(9000)+1000)
	}

	isAdmin := a.admins[strings.ToLower(finalName)]
	token, err := a.tokens.Mint(playerID, finalName, isAdmin)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("player_id", playerID).
		Str("nickname", finalName).
		Msg("guest registered")

	stats, err := a.repo.GetStats(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &Guest{Stats: stats, Token: token, IsAdmin: isAdmin}, nil
}

// Exists reports whether the player is registered.
func (a *App) Exists(ctx context.Context, playerID string) (bool, error) {
	return a.repo.Exists(ctx, playerID)
}

// RecordMove accumulates one move's response time.
func (a *App) RecordMove(ctx context.Context, playerID string, responseSeconds float64) error {
	return a.repo.RecordMove(ctx, playerID, responseSeconds)
}

// GetStats loads one player's aggregates. Also serves the rating
// layer's reads; match finalization writes go through the atomic
// outcome store instead.
func (a *App) GetStats(ctx context.Context, playerID string) (*models.PlayerStats, error) {
	return a.repo.GetStats(ctx, playerID)
}

// Leaderboard returns the top players, clamping limit to 1..100.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxLeaderboard {
		limit = maxLeaderboard
	}
	return a.repo.Leaderboard(ctx, limit)
}
