package words

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/duoeng/wordduel/internal/models"
)

// App draws turn words from the dictionary.
type App struct {
	repo *Repository
}

// NewApp creates a words App.
func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// Draw picks a word the player has not seen this match. Once the player
// has exhausted the dictionary the full set becomes eligible again.
func (a *App) Draw(ctx context.Context, seenWordIDs []string) (*models.Word, error) {
	word, err := a.repo.RandomWord(ctx, seenWordIDs)
	if errors.Is(err, ErrNoWords) && len(seenWordIDs) > 0 {
		return a.repo.RandomWord(ctx, nil)
	}
	return word, err
}

// SeedIfEmpty loads the starter dictionary when the words table is
// empty. Returns the number of inserted words.
func (a *App) SeedIfEmpty(ctx context.Context) (int, error) {
	count, err := a.repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for idx, seed := range starterWords {
		word := models.Word{
			ID:    fmt.Sprintf("seed-%03d", idx+1),
			UA:    seed.ua,
			EN:    seed.en,
			Level: seed.level,
		}
		if err := a.repo.Insert(ctx, word); err != nil {
			return idx, fmt.Errorf("failed to seed dictionary: %w", err)
		}
	}

	log.Info().Int("count", len(starterWords)).Msg("seeded starter dictionary")
	return len(starterWords), nil
}

type seedWord struct {
	ua    string
	en    string
	level string
}

var starterWords = []seedWord{
	{"привіт", "hello", "B1"},
	{"дякую", "thank you", "B1"},
	{"будь ласка", "please", "B1"},
	{"добрий ранок", "good morning", "B1"},
	{"на добраніч", "good night", "B1"},
	{"так", "yes", "B1"},
	{"ні", "no", "B1"},
	{"вода", "water", "B1"},
	{"хліб", "bread", "B1"},
	{"молоко", "milk", "B1"},
	{"яблуко", "apple", "B1"},
	{"книга", "book", "B1"},
	{"стіл", "table", "B1"},
	{"стілець", "chair", "B1"},
	{"вікно", "window", "B1"},
	{"двері", "door", "B1"},
	{"будинок", "house", "B1"},
	{"машина", "car", "B1"},
	{"собака", "dog", "B1"},
	{"кіт", "cat", "B1"},
	{"друг", "friend", "B1"},
	{"сім'я", "family", "B1"},
	{"любов", "love", "B1"},
	{"час", "time", "B1"},
	{"день", "day", "B1"},
	{"незважаючи на", "despite", "B2"},
	{"однак", "however", "B2"},
	{"отже", "therefore", "B2"},
	{"насправді", "actually", "B2"},
	{"очевидно", "obviously", "B2"},
	{"можливо", "perhaps", "B2"},
	{"зрештою", "eventually", "B2"},
	{"здебільшого", "mostly", "B2"},
	{"зазвичай", "usually", "B2"},
	{"визначати", "determine", "B2"},
	{"досягати", "achieve", "B2"},
	{"впливати", "influence", "B2"},
	{"порівнювати", "compare", "B2"},
	{"враження", "impression", "B2"},
	{"досвід", "experience", "B2"},
	{"середовище", "environment", "B2"},
	{"розвиток", "development", "B2"},
	{"суспільство", "society", "B2"},
	{"уряд", "government", "B2"},
	{"економіка", "economy", "B2"},
	{"культура", "culture", "B2"},
	{"освіта", "education", "B2"},
	{"наука", "science", "B2"},
	{"технологія", "technology", "B2"},
	{"здоров'я", "health", "B2"},
}
