package words

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewApp(NewRepository(db)), mock
}

func wordRow(id, ua, en, level string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "ua", "en", "level"}).AddRow(id, ua, en, level)
}

func TestDrawExcludesSeenWords(t *testing.T) {
	app, mock := newMockApp(t)

	mock.ExpectQuery(`SELECT id, ua, en, level FROM words`).
		WithArgs(pq.Array([]string{"seed-001", "seed-002"})).
		WillReturnRows(wordRow("seed-003", "вода", "water", "B1"))

	word, err := app.Draw(context.Background(), []string{"seed-001", "seed-002"})

	require.NoError(t, err)
	assert.Equal(t, "seed-003", word.ID)
	assert.Equal(t, "water", word.EN)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrawFallsBackToFullSetWhenExhausted(t *testing.T) {
	app, mock := newMockApp(t)

	mock.ExpectQuery(`SELECT id, ua, en, level FROM words`).
		WithArgs(pq.Array([]string{"seed-001"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ua", "en", "level"}))
	mock.ExpectQuery(`SELECT id, ua, en, level FROM words`).
		WithArgs(pq.Array([]string{})).
		WillReturnRows(wordRow("seed-001", "привіт", "hello", "B1"))

	word, err := app.Draw(context.Background(), []string{"seed-001"})

	require.NoError(t, err)
	assert.Equal(t, "seed-001", word.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrawEmptyDictionaryErrors(t *testing.T) {
	app, mock := newMockApp(t)

	mock.ExpectQuery(`SELECT id, ua, en, level FROM words`).
		WithArgs(pq.Array([]string{})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ua", "en", "level"}))

	_, err := app.Draw(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoWords)
}

func TestSeedIfEmptySkipsPopulatedTable(t *testing.T) {
	app, mock := newMockApp(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM words`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))

	seeded, err := app.SeedIfEmpty(context.Background())

	require.NoError(t, err)
	assert.Zero(t, seeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedIfEmptyLoadsStarterDictionary(t *testing.T) {
	app, mock := newMockApp(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM words`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for range starterWords {
		mock.ExpectExec(`INSERT INTO words`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	seeded, err := app.SeedIfEmpty(context.Background())

	require.NoError(t, err)
	assert.Equal(t, len(starterWords), seeded)
	require.NoError(t, mock.ExpectationsWereMet())
}
