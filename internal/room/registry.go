package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/models"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Entry wraps one room with its serialization lock. All reads and
// writes of the wrapped room must happen between Lock and Unlock.
type Entry struct {
	mu   sync.Mutex
	room *models.Room
}

// Lock acquires the room's critical section and returns the room.
func (e *Entry) Lock() *models.Room {
	e.mu.Lock()
	return e.room
}

// Unlock releases the room's critical section.
func (e *Entry) Unlock() {
	e.mu.Unlock()
}

// Registry is the single owner of all live rooms. Lookups resolve a
// code to an Entry; different rooms mutate fully independently.
type Registry struct {
	clock   clockwork.Clock
	cfg     Config
	onEvict func(code string)

	mu    sync.RWMutex
	rooms map[string]*Entry
}

// NewRegistry creates a Registry. onEvict, if non-nil, runs after a
// room is removed (used to drop any armed timer for the code).
func NewRegistry(clock clockwork.Clock, cfg Config, onEvict func(code string)) *Registry {
	return &Registry{
		clock:   clock,
		cfg:     cfg,
		onEvict: onEvict,
		rooms:   make(map[string]*Entry),
	}
}

// Create allocates a room under a fresh unique code. The code
// generation loop is bounded; exhaustion returns ErrCodeExhausted.
func (r *Registry) Create(room *models.Room) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.cfg.CodeAttempts; attempt++ {
		code, err := generateCode(r.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := r.rooms[code]; taken {
			continue
		}
		room.Code = code
		r.rooms[code] = &Entry{room: room}
		return code, nil
	}
	return "", ErrCodeExhausted
}

// Get resolves a room code to its entry.
func (r *Registry) Get(code string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrRoomNotFound)
	}
	return entry, nil
}

// Evict removes a room. Safe to call for unknown codes.
func (r *Registry) Evict(code string) {
	r.mu.Lock()
	_, existed := r.rooms[code]
	delete(r.rooms, code)
	r.mu.Unlock()

	if existed && r.onEvict != nil {
		r.onEvict(code)
	}
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sweep evicts finished rooms past their retention window and waiting
// rooms that never got a second player. Returns the evicted codes.
func (r *Registry) Sweep() []string {
	now := r.clock.Now()

	r.mu.RLock()
	candidates := make(map[string]*Entry, len(r.rooms))
	for code, entry := range r.rooms {
		candidates[code] = entry
	}
	r.mu.RUnlock()

	var evicted []string
	for code, entry := range candidates {
		room := entry.Lock()
		stale := false
		switch room.Status {
		case models.RoomStatusFinished:
			stale = room.FinishedAt != nil && now.Sub(*room.FinishedAt) > r.cfg.FinishedRetention
		case models.RoomStatusWaiting:
			stale = now.Sub(room.CreatedAt) > r.cfg.WaitingIdleTimeout
		}
		entry.Unlock()

		if stale {
			r.Evict(code)
			evicted = append(evicted, code)
		}
	}

	if len(evicted) > 0 {
		log.Info().Strs("room_codes", evicted).Msg("evicted stale rooms")
	}
	return evicted
}

// Run sweeps periodically until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
