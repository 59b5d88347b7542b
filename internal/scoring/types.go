package scoring

import (
	"context"
	"time"

	"github.com/duoeng/wordduel/internal/models"
)

// Result is a tagged scoring outcome. Source records how the
// classification was produced; cache hits return the original source
// verbatim.
type Result struct {
	Class  models.ScoreClass `json:"class"`
	Points int               `json:"points"`
	Source string            `json:"source"`
}

// SemanticScorer is the external scoring capability. Implementations
// must honor ctx cancellation; the engine imposes the timeout.
type SemanticScorer interface {
	Score(ctx context.Context, correct, answer string) (int, error)
}

// Config enumerates the engine's tunables.
type Config struct {
	LLMEnabled bool
	LLMTimeout time.Duration
	CacheTTL   time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LLMEnabled: true,
		LLMTimeout: 1500 * time.Millisecond,
		CacheTTL:   24 * time.Hour,
	}
}
