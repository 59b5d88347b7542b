package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/models"
	"github.com/duoeng/wordduel/internal/scoring"
	"github.com/duoeng/wordduel/internal/timer"
)

// WordSource draws the next prompt word, skipping already seen IDs.
type WordSource interface {
	Draw(ctx context.Context, seenWordIDs []string) (*models.Word, error)
}

// AnswerScorer classifies a submitted answer. The call is bounded and
// never errors; degraded results carry a fallback source tag.
type AnswerScorer interface {
	Score(ctx context.Context, word models.Word, answer string) scoring.Result
}

// MatchFinalizer persists rating deltas and the match record when a
// room finishes.
type MatchFinalizer interface {
	FinalizeMatch(ctx context.Context, room *models.Room, winnerID string, finishedAt time.Time) (models.MatchRecord, error)
}

// MoveStore appends resolved turns to durable history.
type MoveStore interface {
	SaveMove(ctx context.Context, move models.Move) error
}

// StatsStore reads player aggregates and accumulates per-move response
// times.
type StatsStore interface {
	GetStats(ctx context.Context, playerID string) (*models.PlayerStats, error)
	RecordMove(ctx context.Context, playerID string, responseSeconds float64) error
}

// AbuseGuard is consulted before mutations are accepted. Denials reject
// the mutation; they never corrupt room state.
type AbuseGuard interface {
	EnsureNotBanned(ctx context.Context, playerID, ip string) error
	AllowSubmit(ctx context.Context, playerID, roomCode string) error
	RecordJoinFailure(ctx context.Context, playerID, ip string)
	RecordViolation(ctx context.Context, playerID, reason string)
	CheckWinFarming(ctx context.Context, winnerID, loserID string)
}

// SubmitResult is the caller-facing outcome of a resolved submission.
type SubmitResult struct {
	TurnNumber int               `json:"turn_number"`
	Points     int               `json:"points"`
	Class      models.ScoreClass `json:"class"`
	Source     string            `json:"scoring_source"`
	CorrectEN  string            `json:"correct_answer"`
	GameOver   bool              `json:"game_over"`
	WinnerID   string            `json:"winner_id,omitempty"`
}

// App is the room game engine: it owns the registry, serializes every
// mutation through the room's entry lock and drives the turn timer.
type App struct {
	cfg       Config
	clock     clockwork.Clock
	registry  *Registry
	scheduler *timer.Scheduler

	words   WordSource
	scorer  AnswerScorer
	ratings MatchFinalizer
	moves   MoveStore
	stats   StatsStore
	guard   AbuseGuard

	broadcaster Broadcaster
}

// NewApp wires the game engine together.
func NewApp(
	cfg Config,
	clock clockwork.Clock,
	words WordSource,
	scorer AnswerScorer,
	ratings MatchFinalizer,
	moves MoveStore,
	stats StatsStore,
	guard AbuseGuard,
) *App {
	app := &App{
		cfg:     cfg,
		clock:   clock,
		words:   words,
		scorer:  scorer,
		ratings: ratings,
		moves:   moves,
		stats:   stats,
		guard:   guard,
	}
	app.scheduler = timer.NewScheduler(clock, app.handleTimerFire)
	app.registry = NewRegistry(clock, cfg, app.scheduler.Cancel)
	return app
}

// SetBroadcaster attaches the snapshot fan-out. May be left unset in
// tests.
func (a *App) SetBroadcaster(b Broadcaster) {
	a.broadcaster = b
}

// Run sweeps stale rooms until the context is cancelled.
func (a *App) Run(ctx context.Context) {
	a.registry.Run(ctx)
}

// CreateRoom allocates a waiting room with the caller as first player.
func (a *App) CreateRoom(ctx context.Context, ownerID string, mode models.GameMode, targetScore int, ip string) (Snapshot, error) {
	if err := a.guard.EnsureNotBanned(ctx, ownerID, ip); err != nil {
		return Snapshot{}, err
	}

	if mode == "" {
		mode = models.GameModeClassic
	}
	if mode != models.GameModeClassic && mode != models.GameModeChallenge {
		return Snapshot{}, fmt.Errorf("mode %q: %w", mode, ErrInvalidMode)
	}
	if targetScore <= 0 {
		targetScore = a.cfg.TargetScoreDefault
	}
	if targetScore > a.cfg.TargetScoreMax {
		targetScore = a.cfg.TargetScoreMax
	}

	stats, err := a.stats.GetStats(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}

	now := a.clock.Now()
	room := &models.Room{
		Mode:        mode,
		TargetScore: targetScore,
		Status:      models.RoomStatusWaiting,
		Version:     1,
		CreatedAt:   now,
		Players: []*models.Player{{
			UserID:    ownerID,
			Nickname:  stats.Nickname,
			Elo:       stats.Elo,
			Order:     1,
			Connected: true,
			JoinedAt:  now,
		}},
	}

	code, err := a.registry.Create(room)
	if err != nil {
		return Snapshot{}, err
	}

	log.Info().
		Str("room_code", code).
		Str("owner_id", ownerID).
		Str("mode", string(mode)).
		Int("target_score", targetScore).
		Msg("room created")

	entry, err := a.registry.Get(code)
	if err != nil {
		return Snapshot{}, err
	}
	locked := entry.Lock()
	defer entry.Unlock()
	a.publish(locked)
	return BuildSnapshot(locked, ownerID, now), nil
}

// Join adds the caller to a waiting room. A repeat join by a member is
// idempotent and returns the current state. The second join starts the
// match: first player goes on turn, the first word is drawn and, in
// challenge mode, a deadline armed.
func (a *App) Join(ctx context.Context, code, userID, ip string) (Snapshot, error) {
	if err := a.guard.EnsureNotBanned(ctx, userID, ip); err != nil {
		return Snapshot{}, err
	}
	code = normalizeCode(code)

	entry, err := a.registry.Get(code)
	if err != nil {
		a.guard.RecordJoinFailure(ctx, userID, ip)
		return Snapshot{}, err
	}

	stats, err := a.stats.GetStats(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	room := entry.Lock()
	defer entry.Unlock()

	if existing := room.PlayerByID(userID); existing != nil {
		if !existing.Connected {
			existing.Connected = true
			room.Version++
			a.publish(room)
		}
		return BuildSnapshot(room, userID, a.clock.Now()), nil
	}
	if room.Status != models.RoomStatusWaiting {
		return Snapshot{}, fmt.Errorf("room %s: %w", code, ErrRoomNotJoinable)
	}
	if len(room.Players) >= 2 {
		return Snapshot{}, fmt.Errorf("room %s: %w", code, ErrRoomFull)
	}

	now := a.clock.Now()
	player := &models.Player{
		UserID:    userID,
		Nickname:  stats.Nickname,
		Elo:       stats.Elo,
		Order:     len(room.Players) + 1,
		Connected: true,
		JoinedAt:  now,
	}

	if len(room.Players) == 1 {
		// Second join starts the match; the creator takes the first turn.
		first := room.Players[0]
		word, err := a.words.Draw(ctx, first.SeenWords())
		if err != nil {
			return Snapshot{}, err
		}

		room.Players = append(room.Players, player)
		room.Status = models.RoomStatusPlaying
		room.MatchID = uuid.New()
		room.StartedAt = &now
		room.TurnNumber = 1
		room.CurrentTurnIndex = 0
		room.CurrentWord = word
		room.TurnStartedAt = &now
		first.MarkSeen(word.ID)
		if room.Mode == models.GameModeChallenge {
			deadline := now.Add(a.cfg.TurnTimeout)
			room.TurnDeadline = &deadline
		}
	} else {
		room.Players = append(room.Players, player)
	}

	room.Version++
	if room.Status == models.RoomStatusPlaying && room.Mode == models.GameModeChallenge {
		a.scheduler.Arm(code, room.Version, a.cfg.TurnTimeout)
	}

	log.Info().
		Str("room_code", code).
		Str("player_id", userID).
		Str("status", string(room.Status)).
		Msg("player joined room")

	a.publish(room)
	return BuildSnapshot(room, userID, now), nil
}

// Submit resolves the live turn with the caller's answer: scores it,
// persists the move, applies points and either finishes the match or
// rotates to the opponent. The room lock is released for the duration
// of the bounded scoring call and the version re-validated afterwards;
// losing that race returns ErrStaleTurn with no state change.
func (a *App) Submit(ctx context.Context, code, userID, answer, ip string) (*SubmitResult, error) {
	code = normalizeCode(code)
	if err := a.guard.AllowSubmit(ctx, userID, code); err != nil {
		return nil, err
	}
	if err := a.guard.EnsureNotBanned(ctx, userID, ip); err != nil {
		return nil, err
	}

	entry, err := a.registry.Get(code)
	if err != nil {
		return nil, err
	}

	room := entry.Lock()
	if room.PlayerByID(userID) == nil {
		entry.Unlock()
		a.guard.RecordViolation(ctx, userID, "submit_without_membership")
		return nil, fmt.Errorf("room %s: %w", code, ErrNotInRoom)
	}
	if room.Status != models.RoomStatusPlaying {
		entry.Unlock()
		return nil, fmt.Errorf("room %s: %w", code, ErrRoomNotPlaying)
	}
	current := room.CurrentPlayer()
	if current == nil || current.UserID != userID {
		entry.Unlock()
		a.guard.RecordViolation(ctx, userID, "submit_not_your_turn")
		return nil, ErrNotYourTurn
	}
	if room.TurnDeadline != nil && a.clock.Now().After(*room.TurnDeadline) {
		version := room.Version
		entry.Unlock()
		a.Timeout(ctx, code, version)
		return nil, ErrStaleTurn
	}

	word := *room.CurrentWord
	version := room.Version
	turnNumber := room.TurnNumber
	matchID := room.MatchID
	turnStartedAt := *room.TurnStartedAt
	entry.Unlock()

	// Bounded external scoring runs outside the room lock so a racing
	// leave or timeout is never blocked behind it.
	result := a.scorer.Score(ctx, word, answer)

	room = entry.Lock()
	defer entry.Unlock()

	if room.Status != models.RoomStatusPlaying || room.Version != version {
		return nil, ErrStaleTurn
	}

	now := a.clock.Now()
	move := models.Move{
		ID:           uuid.New(),
		MatchID:      matchID,
		RoomCode:     code,
		TurnNumber:   turnNumber,
		PlayerID:     userID,
		WordUA:       word.UA,
		CorrectEN:    word.EN,
		Answer:       answer,
		Points:       result.Points,
		Class:        result.Class,
		Source:       result.Source,
		ResponseTime: now.Sub(turnStartedAt).Seconds(),
		CreatedAt:    now,
	}
	if err := a.persistMove(ctx, move); err != nil {
		return nil, err
	}

	current = room.CurrentPlayer()
	prevLast := room.LastMove
	prevScore := current.Score
	current.Score += result.Points
	room.LastMove = &move

	res := &SubmitResult{
		TurnNumber: turnNumber,
		Points:     result.Points,
		Class:      result.Class,
		Source:     result.Source,
		CorrectEN:  word.EN,
	}

	if current.Score >= room.TargetScore {
		if err := a.finishRoom(ctx, room, current.UserID, now); err != nil {
			current.Score = prevScore
			room.LastMove = prevLast
			return nil, err
		}
		res.GameOver = true
		res.WinnerID = current.UserID
	} else {
		if err := a.advanceTurn(ctx, room, now); err != nil {
			current.Score = prevScore
			room.LastMove = prevLast
			return nil, err
		}
	}

	room.Version++
	a.scheduler.Cancel(code)
	if room.Status == models.RoomStatusPlaying && room.Mode == models.GameModeChallenge {
		a.scheduler.Arm(code, room.Version, a.cfg.TurnTimeout)
	}

	log.Info().
		Str("room_code", code).
		Str("player_id", userID).
		Int("turn_number", turnNumber).
		Int("points", result.Points).
		Str("source", result.Source).
		Bool("game_over", res.GameOver).
		Msg("turn resolved by submit")

	a.publish(room)
	return res, nil
}

// Timeout resolves the live turn with zero points. It is a silent
// no-op when version no longer matches the room: the turn was already
// resolved by a racing submit.
func (a *App) Timeout(ctx context.Context, code string, version int64) {
	entry, err := a.registry.Get(normalizeCode(code))
	if err != nil {
		return
	}

	room := entry.Lock()
	defer entry.Unlock()

	if room.Status != models.RoomStatusPlaying || room.Version != version {
		return
	}

	current := room.CurrentPlayer()
	if current == nil || room.CurrentWord == nil {
		return
	}

	now := a.clock.Now()
	move := models.Move{
		ID:           uuid.New(),
		MatchID:      room.MatchID,
		RoomCode:     room.Code,
		TurnNumber:   room.TurnNumber,
		PlayerID:     current.UserID,
		WordUA:       room.CurrentWord.UA,
		CorrectEN:    room.CurrentWord.EN,
		Points:       0,
		Class:        models.ScoreWrong,
		Source:       models.SourceTimeout,
		ResponseTime: a.cfg.TurnTimeout.Seconds(),
		IsTimeout:    true,
		CreatedAt:    now,
	}
	if err := a.advanceTurn(ctx, room, now); err != nil {
		// Could not draw the next word. The move is not persisted yet,
		// so the retried timeout after another full window writes it
		// exactly once.
		log.Error().Err(err).Str("room_code", room.Code).Msg("failed to advance after timeout")
		a.scheduler.Arm(room.Code, room.Version, a.cfg.TurnTimeout)
		return
	}

	if err := a.persistMove(ctx, move); err != nil {
		// The game must keep moving; history has a gap but the turn
		// still advances.
		log.Error().Err(err).Str("room_code", room.Code).Msg("failed to persist timeout move")
	}
	room.LastMove = &move

	room.Version++
	if room.Mode == models.GameModeChallenge {
		a.scheduler.Arm(room.Code, room.Version, a.cfg.TurnTimeout)
	}

	log.Info().
		Str("room_code", room.Code).
		Str("player_id", current.UserID).
		Int("turn_number", move.TurnNumber).
		Msg("turn resolved by timeout")

	a.publish(room)
}

// Leave marks the player disconnected. A disconnect is not a forfeit:
// a disconnected current player still times out normally.
func (a *App) Leave(ctx context.Context, code, userID string) error {
	return a.setConnected(ctx, code, userID, false)
}

// Reconnect marks the player connected again.
func (a *App) Reconnect(ctx context.Context, code, userID string) error {
	return a.setConnected(ctx, code, userID, true)
}

func (a *App) setConnected(_ context.Context, code, userID string, connected bool) error {
	entry, err := a.registry.Get(normalizeCode(code))
	if err != nil {
		return err
	}

	room := entry.Lock()
	defer entry.Unlock()

	player := room.PlayerByID(userID)
	if player == nil {
		return fmt.Errorf("room %s: %w", code, ErrNotInRoom)
	}
	if player.Connected == connected {
		return nil
	}
	player.Connected = connected
	room.Version++
	a.publish(room)
	return nil
}

// State serves the viewer's snapshot for polling clients.
func (a *App) State(ctx context.Context, code, viewerID, ip string) (Snapshot, error) {
	if err := a.guard.EnsureNotBanned(ctx, viewerID, ip); err != nil {
		return Snapshot{}, err
	}

	entry, err := a.registry.Get(normalizeCode(code))
	if err != nil {
		return Snapshot{}, err
	}

	room := entry.Lock()
	defer entry.Unlock()

	if room.PlayerByID(viewerID) == nil {
		return Snapshot{}, fmt.Errorf("room %s: %w", code, ErrNotInRoom)
	}
	return BuildSnapshot(room, viewerID, a.clock.Now()), nil
}

// advanceTurn rotates to the opponent and starts their turn. The next
// word is drawn before any state changes so a draw failure leaves the
// room untouched.
func (a *App) advanceTurn(ctx context.Context, room *models.Room, now time.Time) error {
	nextIndex := 1 - room.CurrentTurnIndex
	next := room.Players[nextIndex]

	word, err := a.words.Draw(ctx, next.SeenWords())
	if err != nil {
		return fmt.Errorf("failed to draw next word for room %s: %w", room.Code, err)
	}

	room.CurrentTurnIndex = nextIndex
	room.TurnNumber++
	room.CurrentWord = word
	room.TurnStartedAt = &now
	next.MarkSeen(word.ID)

	if room.Mode == models.GameModeChallenge {
		deadline := now.Add(a.cfg.TurnTimeout)
		room.TurnDeadline = &deadline
	} else {
		room.TurnDeadline = nil
	}
	return nil
}

// finishRoom persists rating outcomes first; only on success does the
// room transition to finished.
func (a *App) finishRoom(ctx context.Context, room *models.Room, winnerID string, now time.Time) error {
	record, err := a.ratings.FinalizeMatch(ctx, room, winnerID, now)
	if err != nil {
		return err
	}

	room.Status = models.RoomStatusFinished
	room.WinnerID = winnerID
	room.FinishedAt = &now
	room.CurrentTurnIndex = -1
	room.CurrentWord = nil
	room.TurnStartedAt = nil
	room.TurnDeadline = nil

	if loser := room.OtherPlayer(winnerID); loser != nil {
		a.guard.CheckWinFarming(ctx, winnerID, loser.UserID)
	}

	log.Info().
		Str("room_code", room.Code).
		Str("winner_id", winnerID).
		Str("match_id", record.ID.String()).
		Msg("match finished")
	return nil
}

func (a *App) persistMove(ctx context.Context, move models.Move) error {
	if err := a.moves.SaveMove(ctx, move); err != nil {
		log.Warn().Err(err).Str("room_code", move.RoomCode).Msg("move write failed, retrying once")
		if err := a.moves.SaveMove(ctx, move); err != nil {
			return fmt.Errorf("failed to persist move for room %s: %w", move.RoomCode, err)
		}
	}
	if err := a.stats.RecordMove(ctx, move.PlayerID, move.ResponseTime); err != nil {
		if err := a.stats.RecordMove(ctx, move.PlayerID, move.ResponseTime); err != nil {
			log.Error().Err(err).Str("player_id", move.PlayerID).Msg("failed to accumulate response time")
		}
	}
	return nil
}

func (a *App) handleTimerFire(code string, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Timeout(ctx, code, version)
}

func (a *App) publish(room *models.Room) {
	if a.broadcaster == nil {
		return
	}
	now := a.clock.Now()
	update := Update{
		RoomCode:  room.Code,
		Version:   room.Version,
		ForViewer: make(map[string]Snapshot, len(room.Players)),
	}
	for _, p := range room.Players {
		update.ForViewer[p.UserID] = BuildSnapshot(room, p.UserID, now)
	}
	a.broadcaster.Publish(update)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
