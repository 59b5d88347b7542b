package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/room"
)

// PublisherConfig holds JetStream settings for the room event stream.
type PublisherConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
	PublishTimeout  time.Duration
}

// DefaultPublisherConfig returns default JetStream publisher settings.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_EVENTS",
		SubjectPrefix:   "rooms.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
		PublishTimeout:  5 * time.Second,
	}
}

// EventPublisher mirrors room updates onto a JetStream stream so other
// gateway nodes and external consumers can follow games. It implements
// room.Broadcaster.
type EventPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config PublisherConfig

	updates chan room.Update
}

// NewEventPublisher connects to NATS and ensures the room event stream
// exists.
func NewEventPublisher(cfg PublisherConfig) (*EventPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &EventPublisher{
		nc:      nc,
		js:      js,
		config:  cfg,
		updates: make(chan room.Update, 1000),
	}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return p, nil
}

func (p *EventPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Room state updates",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err := p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
		return nil
	}
	if _, err := p.js.UpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// Publish implements room.Broadcaster: updates are queued and shipped
// asynchronously so slow broker round trips never block the engine.
func (p *EventPublisher) Publish(update room.Update) {
	select {
	case p.updates <- update:
	default:
		log.Warn().Str("room_code", update.RoomCode).Msg("publisher queue full, dropping update")
	}
}

// Start drains the update queue until the context is cancelled.
func (p *EventPublisher) Start(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("event publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event publisher shutting down")
			return
		case update := <-p.updates:
			if err := p.publishUpdate(ctx, update); err != nil {
				log.Error().Err(err).
					Str("room_code", update.RoomCode).
					Int64("version", update.Version).
					Msg("failed to publish room update")
			}
		}
	}
}

type roomEvent struct {
	RoomCode  string                   `json:"room_code"`
	Version   int64                    `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Views     map[string]room.Snapshot `json:"views"`
}

func (p *EventPublisher) publishUpdate(ctx context.Context, update room.Update) error {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, update.RoomCode)

	data, err := json.Marshal(roomEvent{
		RoomCode:  update.RoomCode,
		Version:   update.Version,
		Timestamp: time.Now().UTC(),
		Views:     update.ForViewer,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	// Version makes the message ID unique per accepted mutation, so
	// redeliveries inside the duplicate window are discarded.
	_, err = p.js.PublishMsg(pubCtx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Room-Code": []string{update.RoomCode},
		},
	},
		jetstream.WithMsgID(fmt.Sprintf("%s-%d", update.RoomCode, update.Version)),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}

// Close tears down the NATS connection.
func (p *EventPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
