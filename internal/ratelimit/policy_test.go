package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBans struct {
	banned map[string]time.Time
	calls  []string
	clock  clockwork.Clock
	err    error
}

func newMemoryBans(clock clockwork.Clock) *memoryBans {
	return &memoryBans{banned: make(map[string]time.Time), clock: clock}
}

func (m *memoryBans) IsBanned(_ context.Context, entityType, entityID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	until, ok := m.banned[entityType+":"+entityID]
	return ok && until.After(m.clock.Now()), nil
}

func (m *memoryBans) CreateBan(_ context.Context, entityType, entityID, reason string, bannedUntil time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.banned[entityType+":"+entityID] = bannedUntil
	m.calls = append(m.calls, entityType+":"+entityID+":"+reason)
	return nil
}

type fixedWins struct {
	count int
	err   error
}

func (f *fixedWins) CountRecentWins(context.Context, string, string, time.Time) (int, error) {
	return f.count, f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubmitsPerMinute = 3
	cfg.MaxJoinFailuresPerMin = 2
	cfg.SuspiciousPerMinute = 2
	return cfg
}

func TestSlidingWindowLimiterEnforcesBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewSlidingWindowLimiter(clock)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("k", 3, time.Minute))
	}
	assert.False(t, limiter.Allow("k", 3, time.Minute))

	// Events fall out of the window once a minute passes.
	clock.Advance(time.Minute + time.Second)
	assert.True(t, limiter.Allow("k", 3, time.Minute))
}

func TestSlidingWindowLimiterKeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewSlidingWindowLimiter(clock)

	assert.True(t, limiter.Allow("a", 1, time.Minute))
	assert.False(t, limiter.Allow("a", 1, time.Minute))
	assert.True(t, limiter.Allow("b", 1, time.Minute))
}

func TestViolationTrackerCountsWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewViolationTracker(clock)

	assert.Equal(t, 1, tracker.Record("p1", time.Minute))
	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, tracker.Record("p1", time.Minute))
	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, tracker.Record("p1", time.Minute))
}

func TestAllowSubmitBansOnExcess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, policy.AllowSubmit(ctx, "p1", "ROOM1234"))
	}

	err := policy.AllowSubmit(ctx, "p1", "ROOM1234")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, bans.calls, "player:p1:submit_rate_limit")

	require.ErrorIs(t, policy.EnsureNotBanned(ctx, "p1", ""), ErrBanned)
}

func TestEnsureNotBannedChecksPlayerAndIP(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)
	ctx := context.Background()

	require.NoError(t, policy.EnsureNotBanned(ctx, "p1", "10.0.0.1"))

	require.NoError(t, bans.CreateBan(ctx, EntityIP, "10.0.0.1", "test", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, policy.EnsureNotBanned(ctx, "p1", "10.0.0.1"), ErrBanned)

	// A different IP for the same player is clean.
	require.NoError(t, policy.EnsureNotBanned(ctx, "p1", "10.0.0.2"))
}

func TestEnsureNotBannedIgnoresExpiredBans(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)
	ctx := context.Background()

	require.NoError(t, bans.CreateBan(ctx, EntityPlayer, "p1", "test", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, policy.EnsureNotBanned(ctx, "p1", ""), ErrBanned)

	clock.Advance(2 * time.Minute)
	require.NoError(t, policy.EnsureNotBanned(ctx, "p1", ""))
}

func TestEnsureNotBannedPropagatesStoreErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	bans.err = errors.New("connection refused")
	policy := NewPolicy(clock, testConfig(), bans, nil)

	err := policy.EnsureNotBanned(context.Background(), "p1", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBanned)
}

func TestRecordJoinFailureBansBruteForce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)
	ctx := context.Background()

	policy.RecordJoinFailure(ctx, "p1", "10.0.0.1")
	assert.Empty(t, bans.calls)

	policy.RecordJoinFailure(ctx, "p1", "10.0.0.1")
	assert.Contains(t, bans.calls, "player:p1:room_code_bruteforce")
	assert.Contains(t, bans.calls, "ip:10.0.0.1:room_code_bruteforce")
}

func TestRecordViolationBansRepeatOffenders(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)
	ctx := context.Background()

	policy.RecordViolation(ctx, "p1", "submit_not_your_turn")
	assert.Empty(t, bans.calls)

	policy.RecordViolation(ctx, "p1", "double_submit")
	assert.Contains(t, bans.calls, "player:p1:too_many_violations:double_submit")
}

func TestCheckWinFarmingBansAtThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	cfg := testConfig()
	policy := NewPolicy(clock, cfg, bans, &fixedWins{count: cfg.FarmWinsPerMinute})
	ctx := context.Background()

	policy.CheckWinFarming(ctx, "winner", "loser")
	assert.Contains(t, bans.calls, "player:winner:anti_farm_triggered")
}

func TestCheckWinFarmingBelowThresholdIsClean(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, &fixedWins{count: 1})

	policy.CheckWinFarming(context.Background(), "winner", "loser")
	assert.Empty(t, bans.calls)
}

func TestCheckWinFarmingWithoutCounterIsNoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bans := newMemoryBans(clock)
	policy := NewPolicy(clock, testConfig(), bans, nil)

	policy.CheckWinFarming(context.Background(), "winner", "loser")
	assert.Empty(t, bans.calls)
}

func TestAllowSocketMessageBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.SocketMessagesPerMin = 2
	policy := NewPolicy(clock, cfg, newMemoryBans(clock), nil)

	assert.True(t, policy.AllowSocketMessage("p1"))
	assert.True(t, policy.AllowSocketMessage("p1"))
	assert.False(t, policy.AllowSocketMessage("p1"))
	assert.True(t, policy.AllowSocketMessage("p2"))
}
