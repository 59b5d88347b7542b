package matches

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duoeng/wordduel/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func testOutcome() models.MatchOutcome {
	record := models.MatchRecord{
		ID:         uuid.New(),
		RoomCode:   "ABCD1234",
		PlayerA:    "p1",
		PlayerB:    "p2",
		ScoreA:     10,
		ScoreB:     7,
		WinnerID:   "p1",
		EloDeltaA:  16,
		EloDeltaB:  -16,
		StartedAt:  time.Now().Add(-5 * time.Minute),
		FinishedAt: time.Now(),
		Duration:   5 * time.Minute,
		TotalMoves: 14,
	}
	return models.MatchOutcome{
		Record:    record,
		WinnerID:  "p1",
		WinnerElo: 1016,
		LoserID:   "p2",
		LoserElo:  984,
	}
}

func TestApplyMatchOutcomeCommitsInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	outcome := testOutcome()
	record := outcome.Record

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE players`).
		WithArgs("p1", 1016, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE players`).
		WithArgs("p2", 984, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO matches`).
		WithArgs(
			record.ID, record.RoomCode, record.PlayerA, record.PlayerB,
			record.ScoreA, record.ScoreB, record.WinnerID,
			record.EloDeltaA, record.EloDeltaB,
			record.StartedAt, record.FinishedAt,
			[]byte(`{"duration_seconds":300,"total_moves":14}`),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyMatchOutcome(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

// The winner's update must not survive a failed loser update: the whole
// outcome rolls back, leaving ratings untouched for the retry.
func TestApplyMatchOutcomeRollsBackOnPartialFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE players`).
		WithArgs("p1", 1016, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE players`).
		WithArgs("p2", 984, false).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.ApplyMatchOutcome(context.Background(), testOutcome())

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMatchOutcomeUnknownPlayer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE players`).
		WithArgs("p1", 1016, true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyMatchOutcome(context.Background(), testOutcome())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no row to finalize")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMatchRecordDecodesDetails(t *testing.T) {
	repo, mock := newMockRepo(t)
	matchID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "room_code", "player_a", "player_b", "score_a", "score_b",
		"winner_id", "elo_delta_a", "elo_delta_b", "started_at", "finished_at", "details",
	}).AddRow(
		matchID, "ABCD1234", "p1", "p2", 10, 7,
		"p1", 16, -16, time.Now().Add(-5*time.Minute), time.Now(),
		[]byte(`{"duration_seconds":300,"total_moves":14}`),
	)

	mock.ExpectQuery(`SELECT id, room_code`).
		WithArgs(matchID).
		WillReturnRows(rows)

	record, err := repo.GetMatchRecord(context.Background(), matchID)

	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, record.Duration)
	assert.Equal(t, 14, record.TotalMoves)
	assert.Equal(t, "p1", record.WinnerID)
}

func TestGetMatchRecordNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	matchID := uuid.New()

	mock.ExpectQuery(`SELECT id, room_code`).
		WithArgs(matchID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetMatchRecord(context.Background(), matchID)

	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSaveMoveAndListHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	matchID := uuid.New()

	move := models.Move{
		ID:           uuid.New(),
		MatchID:      matchID,
		RoomCode:     "ABCD1234",
		TurnNumber:   3,
		PlayerID:     "p1",
		WordUA:       "вода",
		CorrectEN:    "water",
		Answer:       "water",
		Points:       2,
		Class:        models.ScoreExact,
		Source:       models.SourceLocal,
		ResponseTime: 4.2,
		CreatedAt:    time.Now(),
	}

	mock.ExpectExec(`INSERT INTO moves`).
		WithArgs(
			move.ID, move.MatchID, move.RoomCode, move.TurnNumber, move.PlayerID,
			move.WordUA, move.CorrectEN, move.Answer, move.Points,
			"exact", "local", move.ResponseTime, false, move.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveMove(context.Background(), move))

	rows := sqlmock.NewRows([]string{
		"id", "match_id", "room_code", "turn_number", "player_id",
		"ua_word", "correct_answer", "user_answer", "score_awarded",
		"classification", "scoring_source", "response_time", "is_timeout", "created_at",
	}).
		AddRow(uuid.New(), matchID, "ABCD1234", 1, "p1", "кіт", "cat", "cat", 2, "exact", "local", 2.1, false, time.Now()).
		AddRow(uuid.New(), matchID, "ABCD1234", 2, "p2", "собака", "dog", "", 0, "wrong", "timeout", 30.0, true, time.Now())

	mock.ExpectQuery(`SELECT id, match_id`).
		WithArgs(matchID).
		WillReturnRows(rows)

	moves, err := repo.MovesForMatch(context.Background(), matchID)

	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, models.ScoreExact, moves[0].Class)
	assert.True(t, moves[1].IsTimeout)
	assert.Equal(t, models.SourceTimeout, moves[1].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}
