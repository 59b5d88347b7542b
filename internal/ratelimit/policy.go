package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Entity types a ban can target.
const (
	EntityPlayer = "player"
	EntityIP     = "ip"
)

var (
	// ErrBanned is returned when a player or IP has an active ban.
	ErrBanned = errors.New("entity is temporarily banned")
	// ErrRateLimited is returned when an action exceeds its window budget.
	ErrRateLimited = errors.New("too many requests")
)

// BanRepository persists temporary bans.
type BanRepository interface {
	IsBanned(ctx context.Context, entityType, entityID string) (bool, error)
	CreateBan(ctx context.Context, entityType, entityID, reason string, bannedUntil time.Time) error
}

// RecentWinsCounter reports how many times winner beat loser since a
// cutoff. Used for win-farming detection.
type RecentWinsCounter interface {
	CountRecentWins(ctx context.Context, winnerID, loserID string, since time.Time) (int, error)
}

// Config holds the abuse thresholds.
type Config struct {
	SubmitsPerMinute      int
	SocketMessagesPerMin  int
	MaxJoinFailuresPerMin int
	SuspiciousPerMinute   int
	FarmWinsPerMinute     int
	BanDuration           time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		SubmitsPerMinute:      40,
		SocketMessagesPerMin:  120,
		MaxJoinFailuresPerMin: 12,
		SuspiciousPerMinute:   8,
		FarmWinsPerMinute:     5,
		BanDuration:           5 * time.Minute,
	}
}

// Policy combines window limiters, violation tracking and the ban store
// into the abuse checks the game layer consults.
type Policy struct {
	clock clockwork.Clock
	cfg   Config
	bans  BanRepository
	wins  RecentWinsCounter

	submits    *SlidingWindowLimiter
	sockets    *SlidingWindowLimiter
	joinFails  *ViolationTracker
	violations *ViolationTracker
}

// NewPolicy creates a Policy. wins may be nil to disable win-farming
// detection.
func NewPolicy(clock clockwork.Clock, cfg Config, bans BanRepository, wins RecentWinsCounter) *Policy {
	return &Policy{
		clock:      clock,
		cfg:        cfg,
		bans:       bans,
		wins:       wins,
		submits:    NewSlidingWindowLimiter(clock),
		sockets:    NewSlidingWindowLimiter(clock),
		joinFails:  NewViolationTracker(clock),
		violations: NewViolationTracker(clock),
	}
}

// EnsureNotBanned rejects the call when either the player or the IP has
// an active ban.
func (p *Policy) EnsureNotBanned(ctx context.Context, playerID, ip string) error {
	banned, err := p.bans.IsBanned(ctx, EntityPlayer, playerID)
	if err != nil {
		return fmt.Errorf("failed to check player ban: %w", err)
	}
	if banned {
		return fmt.Errorf("player %s: %w", playerID, ErrBanned)
	}
	if ip == "" {
		return nil
	}
	banned, err = p.bans.IsBanned(ctx, EntityIP, ip)
	if err != nil {
		return fmt.Errorf("failed to check ip ban: %w", err)
	}
	if banned {
		return fmt.Errorf("ip %s: %w", ip, ErrBanned)
	}
	return nil
}

// AllowSubmit enforces the per-player submit budget for a room. Blowing
// the budget bans the player for the configured duration.
func (p *Policy) AllowSubmit(ctx context.Context, playerID, roomCode string) error {
	key := fmt.Sprintf("submit:%s:%s", playerID, roomCode)
	if p.submits.Allow(key, p.cfg.SubmitsPerMinute, time.Minute) {
		return nil
	}
	p.banEntity(ctx, EntityPlayer, playerID, "submit_rate_limit")
	return fmt.Errorf("submit budget exceeded for %s: %w", playerID, ErrRateLimited)
}

// AllowSocketMessage enforces the per-connection message budget.
func (p *Policy) AllowSocketMessage(playerID string) bool {
	return p.sockets.Allow("ws:"+playerID, p.cfg.SocketMessagesPerMin, time.Minute)
}

// RecordJoinFailure tracks failed room lookups per player and IP pair.
// Repeated failures look like room-code brute force and ban both.
func (p *Policy) RecordJoinFailure(ctx context.Context, playerID, ip string) {
	count := p.joinFails.Record(playerID+":"+ip, time.Minute)
	if count < p.cfg.MaxJoinFailuresPerMin {
		return
	}
	p.banEntity(ctx, EntityPlayer, playerID, "room_code_bruteforce")
	if ip != "" {
		p.banEntity(ctx, EntityIP, ip, "room_code_bruteforce")
	}
}

// RecordViolation tracks a suspicious action and bans the player once
// the rolling count crosses the threshold.
func (p *Policy) RecordViolation(ctx context.Context, playerID, reason string) {
	count := p.violations.Record(playerID, time.Minute)
	log.Warn().
		Str("player_id", playerID).
		Str("reason", reason).
		Int("count", count).
		Msg("suspicious behavior detected")
	if count >= p.cfg.SuspiciousPerMinute {
		p.banEntity(ctx, EntityPlayer, playerID, "too_many_violations:"+reason)
	}
}

// CheckWinFarming bans the winner when they beat the same opponent too
// many times inside the window.
func (p *Policy) CheckWinFarming(ctx context.Context, winnerID, loserID string) {
	if p.wins == nil {
		return
	}
	since := p.clock.Now().Add(-time.Minute)
	count, err := p.wins.CountRecentWins(ctx, winnerID, loserID, since)
	if err != nil {
		log.Warn().Err(err).Str("winner_id", winnerID).Msg("failed to count recent wins")
		return
	}
	if count >= p.cfg.FarmWinsPerMinute {
		p.banEntity(ctx, EntityPlayer, winnerID, "anti_farm_triggered")
	}
}

func (p *Policy) banEntity(ctx context.Context, entityType, entityID, reason string) {
	until := p.clock.Now().Add(p.cfg.BanDuration)
	if err := p.bans.CreateBan(ctx, entityType, entityID, reason, until); err != nil {
		log.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("failed to persist ban")
		return
	}
	log.Warn().
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Str("reason", reason).
		Time("banned_until", until).
		Msg("entity temporarily banned")
}
