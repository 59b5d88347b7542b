package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// FireFunc is invoked when an armed deadline expires. It receives the room
// code and the room version captured at arm time; the receiver uses the
// version to discard stale fires.
type FireFunc func(roomCode string, version int64)

type armedTimer struct {
	timer    clockwork.Timer
	version  int64
	cancelCh chan struct{}
}

// Scheduler manages at most one single-shot deadline per room. Arming a
// room replaces any existing deadline; cancellation is effective even when
// it races a concurrent fire (a fire already in flight completes and is
// then discarded by the receiver's version check).
type Scheduler struct {
	clock clockwork.Clock
	fire  FireFunc

	mu     sync.Mutex
	active map[string]*armedTimer
}

// NewScheduler creates a scheduler firing into fn. Use a fake clock in
// tests.
func NewScheduler(clock clockwork.Clock, fn FireFunc) *Scheduler {
	return &Scheduler{
		clock:  clock,
		fire:   fn,
		active: make(map[string]*armedTimer),
	}
}

// Arm schedules a deadline for the room, replacing any existing one.
// The version must be the room version at arm time.
func (s *Scheduler) Arm(roomCode string, version int64, d time.Duration) {
	entry := &armedTimer{
		timer:    s.clock.NewTimer(d),
		version:  version,
		cancelCh: make(chan struct{}),
	}

	s.mu.Lock()
	if existing, ok := s.active[roomCode]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.cancelCh)
		log.Debug().Str("room_code", roomCode).Msg("replaced existing turn timer")
	}
	s.active[roomCode] = entry
	s.mu.Unlock()

	go s.wait(roomCode, entry)

	log.Debug().
		Str("room_code", roomCode).
		Int64("version", version).
		Dur("duration", d).
		Msg("armed turn deadline")
}

// Cancel stops and removes the room's deadline if one is armed.
func (s *Scheduler) Cancel(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.active[roomCode]
	if !ok {
		return
	}
	stopAndDrainTimer(entry.timer)
	close(entry.cancelCh)
	delete(s.active, roomCode)
	log.Debug().Str("room_code", roomCode).Msg("cancelled turn deadline")
}

// ActiveCount reports the number of armed deadlines.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) wait(roomCode string, entry *armedTimer) {
	select {
	case <-entry.timer.Chan():
		// Only deliver the fire if this entry is still the armed one;
		// a cancel or re-arm observed first wins.
		if !s.removeIfCurrent(roomCode, entry) {
			log.Debug().Str("room_code", roomCode).Msg("timer fired after cancellation, dropping")
			return
		}
		s.fire(roomCode, entry.version)
	case <-entry.cancelCh:
	}
}

func (s *Scheduler) removeIfCurrent(roomCode string, entry *armedTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.active[roomCode]; ok && current == entry {
		delete(s.active, roomCode)
		return true
	}
	return false
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
