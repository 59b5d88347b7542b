package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/auth"
	"github.com/duoeng/wordduel/internal/matches"
	"github.com/duoeng/wordduel/internal/players"
	"github.com/duoeng/wordduel/internal/room"
)

// Config holds gateway configuration.
type Config struct {
	ConnectionConfig ConnectionConfig
	PublisherConfig  PublisherConfig
	PublishToNATS    bool
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		PublisherConfig:  DefaultPublisherConfig(),
		PublishToNATS:    false,
	}
}

// Service ties the HTTP API, the WebSocket pool and the optional NATS
// mirror together in front of the game engine.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
	publisher         *EventPublisher
}

// NewService wires the gateway. The returned service's Broadcaster must
// be attached to the room engine before traffic is served.
func NewService(cfg Config, rooms *room.App, playersApp *players.App, matchesRepo *matches.Repository, tokens *auth.Manager, limiter SocketLimiter) (*Service, error) {
	cm := NewConnectionManager(cfg.ConnectionConfig, nil)
	wsHandler := NewWebSocketHandler(cm, rooms, tokens, limiter)
	cm.handler = wsHandler

	s := &Service{
		connectionManager: cm,
		wsHandler:         wsHandler,
		apiHandler:        NewAPIHandler(rooms, playersApp, matchesRepo, tokens),
	}

	if cfg.PublishToNATS {
		publisher, err := NewEventPublisher(cfg.PublisherConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		s.publisher = publisher
	}

	return s, nil
}

// Broadcaster returns the sink room updates should be published to. It
// fans out to connected sockets and, when configured, to NATS.
func (s *Service) Broadcaster() room.Broadcaster {
	if s.publisher == nil {
		return s.connectionManager
	}
	return fanout{s.connectionManager, s.publisher}
}

type fanout []room.Broadcaster

func (f fanout) Publish(update room.Update) {
	for _, b := range f {
		b.Publish(update)
	}
}

// Start runs the broadcast loops until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.connectionManager.Start(ctx)
	if s.publisher != nil {
		go s.publisher.Start(ctx)
	}

	<-ctx.Done()
	return s.Stop()
}

// Stop releases broker resources.
func (s *Service) Stop() error {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}
	log.Info().Msg("gateway stopped")
	return nil
}

// RegisterRoutes mounts the game API and the WebSocket endpoint.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/guest", s.apiHandler.HandleGuest)
	mux.HandleFunc("POST /api/rooms", s.apiHandler.HandleCreateRoom)
	mux.HandleFunc("POST /api/rooms/join", s.apiHandler.HandleJoinRoom)
	mux.HandleFunc("POST /api/rooms/submit", s.apiHandler.HandleSubmit)
	mux.HandleFunc("GET /api/rooms/state", s.apiHandler.HandleRoomState)
	mux.HandleFunc("GET /api/leaderboard", s.apiHandler.HandleLeaderboard)
	mux.HandleFunc("GET /api/players/me", s.apiHandler.HandleMe)
	mux.HandleFunc("GET /api/matches", s.apiHandler.HandleMatch)
	mux.HandleFunc("GET /api/matches/moves", s.apiHandler.HandleMatchMoves)
	mux.HandleFunc("GET /ws/rooms", s.wsHandler.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", s.wsHandler.HandleConnectionStats)
	log.Info().Msg("gateway routes registered")
}
