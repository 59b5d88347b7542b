package scoring

import (
	"context"
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/models"
)

// Engine classifies submitted answers. Deterministic local checks run
// first; only when they are inconclusive is the external semantic scorer
// consulted, bounded by a hard timeout. Scorer failures always degrade
// to a local fallback classification and never surface as errors.
type Engine struct {
	cfg      Config
	scorer   SemanticScorer
	cache    *resultCache
	synonyms map[string][]string
}

// NewEngine creates a scoring engine. scorer may be nil, in which case
// LLM scoring is skipped regardless of config.
func NewEngine(cfg Config, scorer SemanticScorer, clock clockwork.Clock) *Engine {
	return &Engine{
		cfg:    cfg,
		scorer: scorer,
		cache:  newResultCache(clock, cfg.CacheTTL),
		synonyms: map[string][]string{
			"hello":        {"hi", "hey"},
			"car":          {"automobile", "vehicle"},
			"house":        {"home"},
			"friend":       {"mate", "buddy"},
			"dog":          {"puppy", "hound"},
			"cat":          {"kitty", "kitten"},
			"thank you":    {"thanks", "thx"},
			"good morning": {"morning"},
			"good night":   {"night"},
		},
	}
}

// Score classifies answer against the word's English translation. It
// never returns an error and always returns within the configured LLM
// timeout plus local work.
func (e *Engine) Score(ctx context.Context, word models.Word, answer string) Result {
	normAnswer := normalize(answer)
	key := cacheKey(word.ID, normAnswer)

	if cached, ok := e.cache.get(key); ok {
		return cached
	}

	result := e.classify(ctx, word, normAnswer)
	e.cache.set(key, result)
	return result
}

func (e *Engine) classify(ctx context.Context, word models.Word, normAnswer string) Result {
	correct := normalize(word.EN)

	if normAnswer == correct {
		return Result{Class: models.ScoreExact, Points: 2, Source: models.SourceLocal}
	}
	if e.isSynonym(correct, normAnswer) {
		return Result{Class: models.ScoreExact, Points: 2, Source: models.SourceLocal}
	}
	if containsWord(normAnswer, correct) {
		return Result{Class: models.ScorePartial, Points: 1, Source: models.SourceLocal}
	}

	if e.cfg.LLMEnabled && e.scorer != nil {
		scoreCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()

		score, err := e.scorer.Score(scoreCtx, word.EN, normAnswer)
		if err == nil {
			return resultFromPoints(score, models.SourceLLM)
		}

		source := models.SourceFallbackError
		if errors.Is(err, context.DeadlineExceeded) {
			source = models.SourceFallbackTimeout
			log.Warn().Str("word_id", word.ID).Msg("semantic scorer timed out, using fallback")
		} else {
			log.Warn().Err(err).Str("word_id", word.ID).Msg("semantic scorer failed, using fallback")
		}
		fallback := semanticLite(correct, normAnswer)
		fallback.Source = source
		return fallback
	}

	return semanticLite(correct, normAnswer)
}

func (e *Engine) isSynonym(correct, answer string) bool {
	for _, s := range e.synonyms[correct] {
		if answer == s {
			return true
		}
	}
	for _, s := range e.synonyms[answer] {
		if correct == s {
			return true
		}
	}
	return false
}

// semanticLite is the deterministic fallback: token overlap (Jaccard)
// awards a partial when at least half the tokens agree.
func semanticLite(correct, answer string) Result {
	correctTokens := tokenSet(correct)
	answerTokens := tokenSet(answer)
	if len(correctTokens) == 0 || len(answerTokens) == 0 {
		return Result{Class: models.ScoreWrong, Points: 0, Source: models.SourceLocal}
	}

	intersection := 0
	for tok := range correctTokens {
		if answerTokens[tok] {
			intersection++
		}
	}
	union := len(correctTokens) + len(answerTokens) - intersection
	if union > 0 && float64(intersection)/float64(union) >= 0.5 {
		return Result{Class: models.ScorePartial, Points: 1, Source: models.SourceLocal}
	}
	return Result{Class: models.ScoreWrong, Points: 0, Source: models.SourceLocal}
}

func resultFromPoints(points int, source string) Result {
	switch {
	case points >= 2:
		return Result{Class: models.ScoreExact, Points: 2, Source: source}
	case points == 1:
		return Result{Class: models.ScorePartial, Points: 1, Source: source}
	default:
		return Result{Class: models.ScoreWrong, Points: 0, Source: source}
	}
}

// normalize trims, lowercases, strips punctuation and collapses
// whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		case r > 127:
			// Keep non-ASCII letters (answers may quote the UA prompt).
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// containsWord reports whether answer contains the full target phrase as
// a token sequence and carries more content than the target alone.
func containsWord(answer, target string) bool {
	if target == "" || len(answer) <= len(target) {
		return false
	}
	return strings.Contains(" "+answer+" ", " "+target+" ")
}
