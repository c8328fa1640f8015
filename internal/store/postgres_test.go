package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func classifyRows(mock pgxmock.PgxPoolIface, status string, version int, rated bool) *pgxmock.Rows {
	return mock.NewRows([]string{"review_status", "answer_version", "rated"}).AddRow(status, version, rated)
}

func TestPostgresStore_GetCandidate_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, question_text, .* FROM candidates WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCandidate(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCandidate_DBError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM candidates WHERE id = \$1`).
		WithArgs("c1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetCandidate(context.Background(), "c1")
	require.Error(t, err)
	assert.False(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "get candidate c1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Approve_ConflictRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE candidates SET review_status = 'approved'`).
		WithArgs(pgxmock.AnyArg(), "bob", pgxmock.AnyArg(), pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT review_status, answer_version, rating IS NOT NULL FROM candidates`).
		WithArgs("c1").
		WillReturnRows(classifyRows(mock, "approved", 1, false))
	mock.ExpectRollback()

	err := s.ApproveCandidate(context.Background(), "c1", "bob", &model.FAQ{Question: "q", Answer: "a"})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "current: approved")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Approve_InsertsFAQAndRevision(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE candidates SET review_status = 'approved'`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg(), pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO faqs`).
		WithArgs(pgxmock.AnyArg(), "q", "a", "", "", "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO faq_revisions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "q", "a", "create", "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	faq := &model.FAQ{Question: "q", Answer: "a"}
	require.NoError(t, s.ApproveCandidate(context.Background(), "c1", "alice", faq))
	assert.NotEmpty(t, faq.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Skip_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidates SET skip_count = skip_count \+ 1`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT review_status, answer_version`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.SkipCandidate(context.Background(), "ghost", "alice")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reject_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE candidates SET review_status = 'rejected'`).
		WithArgs("too_vague", nil, "alice", pgxmock.AnyArg(), pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RejectCandidate(context.Background(), "c1", "alice", model.RejectTooVague, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Rate_CountsSample(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE candidates SET rating = \$1`).
		WithArgs("good", pgxmock.AnyArg(), "c1", 1).
		WillReturnRows(mock.NewRows([]string{"routing"}).AddRow("AUTO_APPROVE"))
	mock.ExpectExec(`UPDATE calibration SET\s+samples_collected = samples_collected \+ 1`).
		WithArgs(1, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE candidates SET is_calibration_sample = true`).
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO candidate_ratings`).
		WithArgs(pgxmock.AnyArg(), "c1", 1, "good", "alice", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := s.RateCandidate(context.Background(),
		RatingInput{CandidateID: "c1", AnswerVersion: 1, Rating: model.RatingGood, Actor: "alice"}, isAuto)
	require.NoError(t, err)
	assert.True(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Rate_CalibrationAlreadyComplete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE candidates SET rating = \$1`).
		WithArgs("needs_improvement", pgxmock.AnyArg(), "c1", 3).
		WillReturnRows(mock.NewRows([]string{"routing"}).AddRow("AUTO_APPROVE"))
	mock.ExpectExec(`UPDATE calibration SET`).
		WithArgs(0, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO candidate_ratings`).
		WithArgs(pgxmock.AnyArg(), "c1", 3, "needs_improvement", "bob", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := s.RateCandidate(context.Background(),
		RatingInput{CandidateID: "c1", AnswerVersion: 3, Rating: model.RatingNeedsImprovement, Actor: "bob"}, isAuto)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Rate_SpotCheckSkipsCalibration(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE candidates SET rating = \$1`).
		WithArgs("good", pgxmock.AnyArg(), "c1", 1).
		WillReturnRows(mock.NewRows([]string{"routing"}).AddRow("SPOT_CHECK"))
	mock.ExpectExec(`INSERT INTO candidate_ratings`).
		WithArgs(pgxmock.AnyArg(), "c1", 1, "good", "alice", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := s.RateCandidate(context.Background(),
		RatingInput{CandidateID: "c1", AnswerVersion: 1, Rating: model.RatingGood, Actor: "alice"}, isAuto)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Rate_StaleVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE candidates SET rating = \$1`).
		WithArgs("good", pgxmock.AnyArg(), "c1", 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT review_status, answer_version`).
		WithArgs("c1").
		WillReturnRows(classifyRows(mock, "pending", 2, false))
	mock.ExpectRollback()

	_, err := s.RateCandidate(context.Background(),
		RatingInput{CandidateID: "c1", AnswerVersion: 1, Rating: model.RatingGood, Actor: "alice"}, isAuto)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "regenerated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCalibration(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO calibration .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(100, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureCalibration(context.Background(), 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCalibration_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM calibration WHERE id = 1`).WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCalibration(context.Background())
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkCreateCandidates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_candidates"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_candidates"}, candidateColumnList()).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "candidates" .* ON CONFLICT \("id"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.BulkCreateCandidates(context.Background(), []model.Candidate{
		{QuestionText: "q1", StaffAnswer: "a1"},
		{QuestionText: "q2", StaffAnswer: "a2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Restore_NotDismissed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE similar_faq_candidates SET status = 'pending'`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM similar_faq_candidates WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(mock.NewRows([]string{"status"}).AddRow("merged"))
	mock.ExpectRollback()

	err := s.RestoreSimilar(context.Background(), "s1", "admin")
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "not dismissed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Dismiss_WritesEvent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE similar_faq_candidates SET status = \$1`).
		WithArgs("dismissed", nil, pgxmock.AnyArg(), "alice", "duplicate of #12", "s1").
		WillReturnRows(mock.NewRows([]string{"matched_faq_id"}).AddRow("f1"))
	mock.ExpectExec(`INSERT INTO similar_faq_events`).
		WithArgs(pgxmock.AnyArg(), "s1", "dismissed", "alice", "duplicate of #12", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ResolveSimilar(context.Background(), "s1", model.SimilarDismissed,
		Resolution{Actor: "alice", Reason: "duplicate of #12"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", pgPlaceholders(3))
	assert.Len(t, candidateColumnList(), 30)
	assert.Equal(t, "updated_at", candidateColumnList()[29])
}

func TestPostgresStore_ReplaceAnswer_UnscoredClearsMetrics(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)UPDATE candidates SET\s+protocol = \$1, .*final_score = NULL WHERE id = \$4 AND answer_version = \$5`).
		WithArgs("musig", "new answer", pgxmock.AnyArg(), "c1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ReplaceAnswer(context.Background(), "c1", 1, model.AnswerUpdate{
		Protocol:        model.ProtocolMuSig,
		GeneratedAnswer: "new answer",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSimilar_MissingFAQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO similar_faq_candidates`).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	err := s.CreateSimilarCandidate(context.Background(), &model.SimilarFaqCandidate{
		ExtractedQuestion: "q", ExtractedAnswer: "a", MatchedFAQID: "gone", Similarity: 0.9,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "gone")
	assert.NoError(t, mock.ExpectationsWereMet())
}
