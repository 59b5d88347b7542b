package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// resultCache holds immutable scoring results keyed by word id and
// normalized answer. Entries expire by TTL; they are never invalidated
// otherwise since translations don't change mid-game.
type resultCache struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newResultCache(clock clockwork.Clock, ttl time.Duration) *resultCache {
	return &resultCache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(wordID, normalizedAnswer string) string {
	sum := sha256.Sum256([]byte(wordID + "::" + normalizedAnswer))
	return hex.EncodeToString(sum[:])
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) set(key string, result Result) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic pruning keeps the map bounded without a sweeper.
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{result: result, expiresAt: now.Add(c.ttl)}
}
