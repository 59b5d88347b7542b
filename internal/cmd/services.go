package main

import (
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/gateway"
	"github.com/duoeng/wordduel/internal/matches"
	"github.com/duoeng/wordduel/internal/players"
	"github.com/duoeng/wordduel/internal/ratelimit"
	"github.com/duoeng/wordduel/internal/rating"
	"github.com/duoeng/wordduel/internal/room"
	"github.com/duoeng/wordduel/internal/scoring"
	"github.com/duoeng/wordduel/internal/words"
)

type Services struct {
	Words   *words.App
	Players *players.App
	Rooms   *room.App
	Gateway *gateway.Service
}

func setupServices(database *sql.DB, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Gateway
	clock := clockwork.NewRealClock()

	tokens := auth.NewManager(getEnv("JWT_SECRET", "dev-secret-change-me"), config.tokenTTL(), clock)

	wordsApp := words.NewApp(words.NewRepository(database))

	playersApp := players.NewApp(players.NewRepository(database), tokens, config.Auth.AdminNicknames)

	matchesRepo := matches.NewRepository(database)
	ratingApp := rating.NewApp(playersApp, matchesRepo, config.Rating.KFactor)

	abuseRepo := ratelimit.NewRepository(database)
	policy := ratelimit.NewPolicy(clock, config.rateLimitConfig(), abuseRepo, abuseRepo)

	var semanticScorer scoring.SemanticScorer
	if baseURL := getEnv("SCORER_URL", ""); baseURL != "" {
		semanticScorer = scoring.NewHTTPScorer(baseURL, getEnv("SCORER_API_KEY", ""))
	}
	engine := scoring.NewEngine(config.scoringConfig(), semanticScorer, clock)

	rooms := room.NewApp(
		config.roomConfig(),
		clock,
		wordsApp,
		engine,
		ratingApp,
		matchesRepo,
		playersApp,
		policy,
	)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.PublishToNATS = config.NATS.Enabled
	gatewayConfig.PublisherConfig.URL = getEnv("NATS_URL", gatewayConfig.PublisherConfig.URL)

	gatewayService, err := gateway.NewService(gatewayConfig, rooms, playersApp, matchesRepo, tokens, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	rooms.SetBroadcaster(gatewayService.Broadcaster())

	return &Services{
		Words:   wordsApp,
		Players: playersApp,
		Rooms:   rooms,
		Gateway: gatewayService,
	}, nil
}
