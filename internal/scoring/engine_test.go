package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duoeng/wordduel/internal/models"
)

type fakeScorer struct {
	score int
	err   error
	block bool
	calls int
}

func (f *fakeScorer) Score(ctx context.Context, correct, answer string) (int, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.score, f.err
}

func testWord() models.Word {
	return models.Word{ID: "w-tree", UA: "дерево", EN: "tree"}
}

func TestEngineLocalLadder(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		class  models.ScoreClass
		points int
	}{
		{name: "exact match", answer: "tree", class: models.ScoreExact, points: 2},
		{name: "exact with casing and spacing", answer: "  Tree ", class: models.ScoreExact, points: 2},
		{name: "descriptive sentence containing word", answer: "I saw a big tree yesterday", class: models.ScorePartial, points: 1},
		{name: "unrelated word", answer: "car", class: models.ScoreWrong, points: 0},
		{name: "empty answer", answer: "", class: models.ScoreWrong, points: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(Config{LLMEnabled: false, CacheTTL: time.Hour}, nil, clockwork.NewFakeClock())

			result := engine.Score(context.Background(), testWord(), tt.answer)

			assert.Equal(t, tt.class, result.Class)
			assert.Equal(t, tt.points, result.Points)
			assert.Equal(t, models.SourceLocal, result.Source)
		})
	}
}

func TestEngineSynonymScoresExact(t *testing.T) {
	engine := NewEngine(Config{LLMEnabled: false, CacheTTL: time.Hour}, nil, clockwork.NewFakeClock())
	word := models.Word{ID: "w-car", UA: "автомобіль", EN: "car"}

	result := engine.Score(context.Background(), word, "automobile")

	assert.Equal(t, models.ScoreExact, result.Class)
	assert.Equal(t, 2, result.Points)
}

func TestEngineLLMJudgesDescriptiveAnswer(t *testing.T) {
	scorer := &fakeScorer{score: 1}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: time.Second, CacheTTL: time.Hour}, scorer, clockwork.NewFakeClock())

	result := engine.Score(context.Background(), testWord(), "a tall plant with leaves")

	assert.Equal(t, models.ScorePartial, result.Class)
	assert.Equal(t, 1, result.Points)
	assert.Equal(t, models.SourceLLM, result.Source)
	assert.Equal(t, 1, scorer.calls)
}

func TestEngineLocalMatchSkipsLLM(t *testing.T) {
	scorer := &fakeScorer{score: 0}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: time.Second, CacheTTL: time.Hour}, scorer, clockwork.NewFakeClock())

	result := engine.Score(context.Background(), testWord(), "tree")

	assert.Equal(t, models.ScoreExact, result.Class)
	assert.Equal(t, 0, scorer.calls)
}

func TestEngineTimeoutFallsBackWithinBound(t *testing.T) {
	scorer := &fakeScorer{block: true}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: 50 * time.Millisecond, CacheTTL: time.Hour}, scorer, clockwork.NewFakeClock())

	start := time.Now()
	result := engine.Score(context.Background(), testWord(), "something unrelated entirely")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.True(t, strings.HasPrefix(result.Source, "fallback_"), "source %q", result.Source)
	assert.Equal(t, models.SourceFallbackTimeout, result.Source)
	assert.Equal(t, models.ScoreWrong, result.Class)
}

func TestEngineScorerErrorFallsBack(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("connection refused")}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: time.Second, CacheTTL: time.Hour}, scorer, clockwork.NewFakeClock())

	// Half the tokens overlap, so the fallback awards a partial.
	word := models.Word{ID: "w-gm", UA: "добрий ранок", EN: "good morning"}
	result := engine.Score(context.Background(), word, "morning good everyone friends")

	assert.Equal(t, models.SourceFallbackError, result.Source)
	assert.Equal(t, models.ScorePartial, result.Class)
}

func TestEngineCacheHitShortCircuitsScorer(t *testing.T) {
	scorer := &fakeScorer{score: 2}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: time.Second, CacheTTL: time.Hour}, scorer, clockwork.NewFakeClock())

	first := engine.Score(context.Background(), testWord(), "woody perennial plant")
	second := engine.Score(context.Background(), testWord(), "woody perennial plant")

	assert.Equal(t, 1, scorer.calls)
	// Cache hits report the original source verbatim.
	assert.Equal(t, first, second)
	assert.Equal(t, models.SourceLLM, second.Source)
}

func TestEngineCacheExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	scorer := &fakeScorer{score: 2}
	engine := NewEngine(Config{LLMEnabled: true, LLMTimeout: time.Second, CacheTTL: time.Minute}, scorer, clock)

	engine.Score(context.Background(), testWord(), "woody perennial plant")
	clock.Advance(2 * time.Minute)
	engine.Score(context.Background(), testWord(), "woody perennial plant")

	require.Equal(t, 2, scorer.calls)
}
