package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Writes are serialized through a single connection so read-then-write
// transactions never race for the write lock.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id                    TEXT PRIMARY KEY,
	question_text         TEXT NOT NULL,
	staff_answer          TEXT NOT NULL,
	generated_answer      TEXT,
	protocol              TEXT NOT NULL DEFAULT '',
	embedding_similarity  REAL,
	factual_alignment     REAL,
	contradiction_score   REAL,
	completeness          REAL,
	hallucination_risk    REAL,
	generation_confidence REAL,
	final_score           REAL,
	routing               TEXT NOT NULL DEFAULT 'FULL_REVIEW',
	review_status         TEXT NOT NULL DEFAULT 'pending',
	rejection_reason      TEXT,
	rejection_note        TEXT,
	is_calibration_sample INTEGER NOT NULL DEFAULT 0,
	edited_staff_answer   TEXT,
	edited_question_text  TEXT,
	category              TEXT NOT NULL DEFAULT '',
	source                TEXT NOT NULL DEFAULT '',
	answer_version        INTEGER NOT NULL DEFAULT 1,
	rating                TEXT,
	skip_count            INTEGER NOT NULL DEFAULT 0,
	last_skipped_at       DATETIME,
	faq_id                TEXT,
	reviewed_by           TEXT,
	reviewed_at           DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate_ratings (
	id             TEXT PRIMARY KEY,
	candidate_id   TEXT NOT NULL REFERENCES candidates(id),
	answer_version INTEGER NOT NULL,
	rating         TEXT NOT NULL,
	rated_by       TEXT NOT NULL,
	counted        INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	UNIQUE (candidate_id, answer_version)
);

CREATE TABLE IF NOT EXISTS calibration (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	samples_collected       INTEGER NOT NULL DEFAULT 0,
	samples_required        INTEGER NOT NULL,
	good_count              INTEGER NOT NULL DEFAULT 0,
	needs_improvement_count INTEGER NOT NULL DEFAULT 0,
	completed_at            DATETIME,
	updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS faqs (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	protocol   TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS faq_revisions (
	id         TEXT PRIMARY KEY,
	faq_id     TEXT NOT NULL REFERENCES faqs(id),
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS similar_faq_candidates (
	id                 TEXT PRIMARY KEY,
	extracted_question TEXT NOT NULL,
	extracted_answer   TEXT NOT NULL,
	extracted_category TEXT NOT NULL DEFAULT '',
	matched_faq_id     TEXT NOT NULL REFERENCES faqs(id),
	matched_question   TEXT NOT NULL,
	matched_answer     TEXT NOT NULL,
	similarity         REAL NOT NULL,
	tier               TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	merge_mode         TEXT,
	result_faq_id      TEXT,
	resolved_at        DATETIME,
	resolved_by        TEXT,
	dismiss_reason     TEXT,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS similar_faq_events (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL REFERENCES similar_faq_candidates(id),
	status       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	reason       TEXT,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_queue ON candidates(review_status, routing, skip_count, created_at);
CREATE INDEX IF NOT EXISTS idx_candidate_ratings_candidate ON candidate_ratings(candidate_id);
CREATE INDEX IF NOT EXISTS idx_faq_revisions_faq ON faq_revisions(faq_id, created_at);
CREATE INDEX IF NOT EXISTS idx_similar_status ON similar_faq_candidates(status, created_at);
CREATE INDEX IF NOT EXISTS idx_similar_events_candidate ON similar_faq_events(candidate_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- candidates ---

func prepareCandidate(c *model.Candidate) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.AnswerVersion == 0 {
		c.AnswerVersion = 1
	}
	if c.ReviewStatus == "" {
		c.ReviewStatus = model.ReviewPending
	}
	if c.Routing == "" {
		c.Routing = model.RoutingFullReview
	}
}

// candidateValues returns insert values in candidateColumns order.
func candidateValues(c *model.Candidate) []any {
	m := c.Metrics
	var rating *string
	if c.Rating != nil {
		r := string(*c.Rating)
		rating = &r
	}
	return []any{
		c.ID, c.QuestionText, c.StaffAnswer, deref(c.GeneratedAnswer), string(c.Protocol),
		deref(m.EmbeddingSimilarity), deref(m.FactualAlignment), deref(m.ContradictionScore),
		deref(m.Completeness), deref(m.HallucinationRisk),
		deref(c.GenerationConfidence), deref(c.FinalScore), string(c.Routing), string(c.ReviewStatus),
		nullIfEmpty(string(c.RejectionReason)), nullIfEmpty(c.RejectionNote),
		c.IsCalibrationSample, deref(c.EditedStaffAnswer), deref(c.EditedQuestionText), c.Category, c.Source,
		c.AnswerVersion, deref(rating), c.SkipCount, deref(c.LastSkippedAt), deref(c.FAQID),
		nullIfEmpty(c.ReviewedBy), deref(c.ReviewedAt),
		c.CreatedAt, c.UpdatedAt,
	}
}

func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var sqliteInsertCandidate = fmt.Sprintf(`INSERT INTO candidates (%s) VALUES (%s)`, candidateColumns, sqlitePlaceholders(30))

func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	prepareCandidate(c)
	if _, err := s.db.ExecContext(ctx, sqliteInsertCandidate, candidateValues(c)...); err != nil {
		return eris.Wrap(err, "sqlite: insert candidate")
	}
	return nil
}

func (s *SQLiteStore) BulkCreateCandidates(ctx context.Context, cs []model.Candidate) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback() //nolint:errcheck

	var inserted int64
	stmt := sqliteInsertCandidate + ` ON CONFLICT (id) DO NOTHING`
	for i := range cs {
		prepareCandidate(&cs[i])
		res, err := tx.ExecContext(ctx, stmt, candidateValues(&cs[i])...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk insert candidate %s", cs[i].ID)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanSQLiteCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("candidate", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND review_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Routing != "" {
		query += ` AND routing = ?`
		args = append(args, string(filter.Routing))
	}
	if filter.Unscored {
		query += ` AND review_status = 'pending' AND final_score IS NULL AND generated_answer IS NOT NULL`
	}
	query += ` ORDER BY skip_count ASC, created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		c, err := scanSQLiteCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

// candidateCAS runs an UPDATE guarded on review_status = 'pending' and
// classifies a zero-row result as not found or conflict.
func (s *SQLiteStore) candidateCAS(ctx context.Context, q sqlExecer, id, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, q, id, 0)
}

// classifyCandidate explains why a guarded candidate update matched no row.
// wantVersion of 0 skips the version check.
func (s *SQLiteStore) classifyCandidate(ctx context.Context, q sqlExecer, id string, wantVersion int) error {
	var status string
	var version int
	var rated bool
	err := q.QueryRowContext(ctx,
		`SELECT review_status, answer_version, rating IS NOT NULL FROM candidates WHERE id = ?`, id,
	).Scan(&status, &version, &rated)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("candidate", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: classify candidate %s", id)
	}
	if wantVersion == 0 {
		return conflict("candidate", id, status)
	}
	return ratingConflict(id, model.ReviewStatus(status), version, rated, wantVersion)
}

func (s *SQLiteStore) EditCandidate(ctx context.Context, id string, edit model.CandidateEdit) error {
	return s.candidateCAS(ctx, s.db, id,
		`UPDATE candidates SET
			edited_question_text = COALESCE(?, edited_question_text),
			edited_staff_answer = COALESCE(?, edited_staff_answer),
			category = COALESCE(?, category),
			updated_at = ?
		WHERE id = ? AND review_status = 'pending'`,
		deref(edit.QuestionText), deref(edit.StaffAnswer), deref(edit.Category), time.Now().UTC(), id,
	)
}

func (s *SQLiteStore) SetScores(ctx context.Context, id string, answerVersion int, up model.ScoreUpdate) error {
	args := append(scoreFields(up), time.Now().UTC(), id, answerVersion)
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET
			embedding_similarity = ?, factual_alignment = ?, contradiction_score = ?,
			completeness = ?, hallucination_risk = ?,
			generation_confidence = ?, final_score = ?, routing = ?, updated_at = ?
		WHERE id = ? AND answer_version = ? AND review_status = 'pending'`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set scores %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, s.db, id, answerVersion)
}

func (s *SQLiteStore) ReplaceAnswer(ctx context.Context, id string, answerVersion int, up model.AnswerUpdate) error {
	now := time.Now().UTC()
	query := `UPDATE candidates SET
			protocol = ?, generated_answer = ?, answer_version = answer_version + 1,
			rating = NULL, is_calibration_sample = 0, updated_at = ?`
	args := []any{string(up.Protocol), up.GeneratedAnswer, now}
	if up.Scores != nil {
		query += `, embedding_similarity = ?, factual_alignment = ?, contradiction_score = ?,
			completeness = ?, hallucination_risk = ?,
			generation_confidence = ?, final_score = ?, routing = ?`
		args = append(args, scoreFields(*up.Scores)...)
	} else {
		query += clearScoresSQL
	}
	query += ` WHERE id = ? AND answer_version = ? AND review_status = 'pending'`
	args = append(args, id, answerVersion)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace answer %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, s.db, id, answerVersion)
}

func (s *SQLiteStore) ApproveCandidate(ctx context.Context, id, actor string, faq *model.FAQ) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin approve")
	}
	defer tx.Rollback() //nolint:errcheck

	prepareFAQ(faq)
	now := time.Now().UTC()
	if err := s.candidateCAS(ctx, tx, id,
		`UPDATE candidates SET review_status = 'approved', faq_id = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND review_status = 'pending'`,
		faq.ID, actor, now, now, id,
	); err != nil {
		return err
	}
	if err := insertSQLiteFAQ(ctx, tx, faq, actor); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit approve")
}

func (s *SQLiteStore) RejectCandidate(ctx context.Context, id, actor string, reason model.RejectionReason, note string) error {
	now := time.Now().UTC()
	return s.candidateCAS(ctx, s.db, id,
		`UPDATE candidates SET review_status = 'rejected', rejection_reason = ?, rejection_note = ?,
			reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND review_status = 'pending'`,
		string(reason), nullIfEmpty(note), actor, now, now, id,
	)
}

func (s *SQLiteStore) SkipCandidate(ctx context.Context, id, actor string) error {
	now := time.Now().UTC()
	return s.candidateCAS(ctx, s.db, id,
		`UPDATE candidates SET skip_count = skip_count + 1, last_skipped_at = ?, updated_at = ?
		WHERE id = ? AND review_status = 'pending'`,
		now, now, id,
	)
}

func (s *SQLiteStore) RateCandidate(ctx context.Context, in RatingInput, eligible func(model.Routing) bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin rate")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var routing string
	err = tx.QueryRowContext(ctx,
		`UPDATE candidates SET rating = ?, updated_at = ?
		WHERE id = ? AND answer_version = ? AND rating IS NULL
			AND review_status = 'pending' AND generated_answer IS NOT NULL
		RETURNING routing`,
		string(in.Rating), now, in.CandidateID, in.AnswerVersion,
	).Scan(&routing)
	if errors.Is(err, sql.ErrNoRows) {
		return false, s.classifyCandidate(ctx, tx, in.CandidateID, in.AnswerVersion)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: rate candidate %s", in.CandidateID)
	}

	counted := false
	if eligible != nil && eligible(model.Routing(routing)) {
		good, ni := ratingCounts(in.Rating)
		res, err := tx.ExecContext(ctx,
			`UPDATE calibration SET
				samples_collected = samples_collected + 1,
				good_count = good_count + ?,
				needs_improvement_count = needs_improvement_count + ?,
				completed_at = CASE WHEN samples_collected + 1 >= samples_required THEN ? ELSE completed_at END,
				updated_at = ?
			WHERE id = 1 AND samples_collected < samples_required`,
			good, ni, now, now,
		)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: increment calibration")
		}
		n, _ := res.RowsAffected()
		counted = n > 0
		if counted {
			if _, err := tx.ExecContext(ctx,
				`UPDATE candidates SET is_calibration_sample = 1 WHERE id = ?`, in.CandidateID,
			); err != nil {
				return false, eris.Wrap(err, "sqlite: mark calibration sample")
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO candidate_ratings (id, candidate_id, answer_version, rating, rated_by, counted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), in.CandidateID, in.AnswerVersion, string(in.Rating), in.Actor, counted, now,
	); err != nil {
		return false, eris.Wrap(err, "sqlite: insert rating")
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit rate")
	}
	return counted, nil
}

// --- calibration ---

func (s *SQLiteStore) EnsureCalibration(ctx context.Context, samplesRequired int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration (id, samples_collected, samples_required, updated_at)
		VALUES (1, 0, ?, ?) ON CONFLICT (id) DO NOTHING`,
		samplesRequired, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: ensure calibration")
}

func (s *SQLiteStore) GetCalibration(ctx context.Context) (*model.CalibrationStatus, error) {
	var st model.CalibrationStatus
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT samples_collected, samples_required, good_count, needs_improvement_count, completed_at
		FROM calibration WHERE id = 1`,
	).Scan(&st.SamplesCollected, &st.SamplesRequired, &st.GoodCount, &st.NeedsImprovementCount, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("calibration", "1")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get calibration")
	}
	st.CompletedAt = timePtr(completedAt)
	st.IsComplete = st.SamplesCollected >= st.SamplesRequired
	return &st, nil
}

// --- similar FAQ candidates ---

func (s *SQLiteStore) CreateSimilarCandidate(ctx context.Context, c *model.SimilarFaqCandidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.SimilarPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO similar_faq_candidates (`+similarColumns+`) VALUES (`+sqlitePlaceholders(16)+`)`,
		c.ID, c.ExtractedQuestion, c.ExtractedAnswer, c.ExtractedCategory,
		c.MatchedFAQID, c.MatchedQuestion, c.MatchedAnswer, c.Similarity, c.Tier, string(c.Status),
		nullIfEmpty(string(c.MergeMode)), nullIfEmpty(c.ResultFAQID), deref(c.ResolvedAt),
		nullIfEmpty(c.ResolvedBy), nullIfEmpty(c.DismissReason), c.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return apperr.NotFound("faq", c.MatchedFAQID)
	}
	return eris.Wrap(err, "sqlite: insert similar candidate")
}

func (s *SQLiteStore) GetSimilarCandidate(ctx context.Context, id string) (*model.SimilarFaqCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+similarColumns+` FROM similar_faq_candidates WHERE id = ?`, id)
	c, err := scanSQLiteSimilar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("similar_faq_candidate", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get similar candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListSimilarCandidates(ctx context.Context, filter SimilarFilter) ([]model.SimilarFaqCandidate, error) {
	query := `SELECT ` + similarColumns + ` FROM similar_faq_candidates`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list similar candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SimilarFaqCandidate
	for rows.Next() {
		c, err := scanSQLiteSimilar(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan similar candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate similar candidates")
}

func (s *SQLiteStore) ResolveSimilar(ctx context.Context, id string, to model.SimilarStatus, res Resolution) error {
	if err := resolutionCheck(to, res); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin resolve")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var matchedFAQID string
	err = tx.QueryRowContext(ctx,
		`UPDATE similar_faq_candidates SET status = ?, merge_mode = ?, resolved_at = ?, resolved_by = ?, dismiss_reason = ?
		WHERE id = ? AND status = 'pending'
		RETURNING matched_faq_id`,
		string(to), nullIfEmpty(string(res.Mode)), now, res.Actor, nullIfEmpty(res.Reason), id,
	).Scan(&matchedFAQID)
	if errors.Is(err, sql.ErrNoRows) {
		return s.classifySimilar(ctx, tx, id, model.SimilarPending)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve similar candidate %s", id)
	}

	var resultFAQID string
	switch to {
	case model.SimilarApproved:
		prepareFAQ(res.FAQ)
		if err := insertSQLiteFAQ(ctx, tx, res.FAQ, res.Actor); err != nil {
			return err
		}
		resultFAQID = res.FAQ.ID
	case model.SimilarMerged:
		if err := s.rewriteFAQ(ctx, tx, matchedFAQID, res, now); err != nil {
			return err
		}
		resultFAQID = matchedFAQID
	}

	if resultFAQID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE similar_faq_candidates SET result_faq_id = ? WHERE id = ?`, resultFAQID, id,
		); err != nil {
			return eris.Wrap(err, "sqlite: set result faq")
		}
	}
	if err := insertSQLiteEvent(ctx, tx, id, to, res.Actor, res.Reason, now); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit resolve")
}

// rewriteFAQ records the matched FAQ's prior content and overwrites it in place.
func (s *SQLiteStore) rewriteFAQ(ctx context.Context, tx *sql.Tx, faqID string, res Resolution, now time.Time) error {
	cur, err := scanSQLiteFAQ(tx.QueryRowContext(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = ?`, faqID))
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("faq", faqID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read faq %s", faqID)
	}

	if err := insertSQLiteRevision(ctx, tx, cur, revisionAction(res.Mode), res.Actor, now); err != nil {
		return err
	}

	next := res.Rewrite(*cur)
	if _, err := tx.ExecContext(ctx,
		`UPDATE faqs SET question = ?, answer = ?, category = ?, updated_at = ? WHERE id = ?`,
		next.Question, next.Answer, next.Category, now, faqID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update faq %s", faqID)
	}
	return nil
}

// RestoreSimilar reopens a dismissed candidate. Resolution columns are
// cleared; the dismissal stays in similar_faq_events.
func (s *SQLiteStore) RestoreSimilar(ctx context.Context, id, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin restore")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE similar_faq_candidates SET status = 'pending', merge_mode = NULL, resolved_at = NULL,
			resolved_by = NULL, dismiss_reason = NULL
		WHERE id = ? AND status = 'dismissed'`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: restore similar candidate %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.classifySimilar(ctx, tx, id, model.SimilarDismissed)
	}
	if err := insertSQLiteEvent(ctx, tx, id, model.SimilarPending, actor, "restored", time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit restore")
}

func (s *SQLiteStore) classifySimilar(ctx context.Context, q sqlExecer, id string, want model.SimilarStatus) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM similar_faq_candidates WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("similar_faq_candidate", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: classify similar candidate %s", id)
	}
	return similarConflict(id, model.SimilarStatus(status), want)
}

func (s *SQLiteStore) ListSimilarEvents(ctx context.Context, candidateID string) ([]model.SimilarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate_id, status, actor, reason, created_at
		FROM similar_faq_events WHERE candidate_id = ? ORDER BY created_at ASC, rowid ASC`, candidateID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list similar events")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SimilarEvent
	for rows.Next() {
		var e model.SimilarEvent
		var status string
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.CandidateID, &status, &e.Actor, &reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan similar event")
		}
		e.Status = model.SimilarStatus(status)
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate similar events")
}

// --- FAQs ---

func (s *SQLiteStore) CreateFAQ(ctx context.Context, f *model.FAQ, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create faq")
	}
	defer tx.Rollback() //nolint:errcheck

	prepareFAQ(f)
	if err := insertSQLiteFAQ(ctx, tx, f, actor); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create faq")
}

func (s *SQLiteStore) GetFAQ(ctx context.Context, id string) (*model.FAQ, error) {
	f, err := scanSQLiteFAQ(s.db.QueryRowContext(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("faq", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get faq %s", id)
	}
	return f, nil
}

func (s *SQLiteStore) ListFAQRevisions(ctx context.Context, faqID string) ([]model.FAQRevision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, faq_id, question, answer, action, actor, created_at
		FROM faq_revisions WHERE faq_id = ? ORDER BY created_at ASC, rowid ASC`, faqID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list faq revisions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FAQRevision
	for rows.Next() {
		var r model.FAQRevision
		var action string
		if err := rows.Scan(&r.ID, &r.FAQID, &r.Question, &r.Answer, &action, &r.Actor, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan faq revision")
		}
		r.Action = model.RevisionAction(action)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate faq revisions")
}

func prepareFAQ(f *model.FAQ) {
	now := time.Now().UTC()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
}

// insertSQLiteFAQ writes the FAQ and its create revision.
func insertSQLiteFAQ(ctx context.Context, tx *sql.Tx, f *model.FAQ, actor string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO faqs (`+faqColumns+`) VALUES (`+sqlitePlaceholders(9)+`)`,
		f.ID, f.Question, f.Answer, f.Category, string(f.Protocol), f.Source, f.SourceID, f.CreatedAt, f.UpdatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert faq")
	}
	return insertSQLiteRevision(ctx, tx, f, model.RevisionCreate, actor, f.CreatedAt)
}

func insertSQLiteRevision(ctx context.Context, tx *sql.Tx, f *model.FAQ, action model.RevisionAction, actor string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO faq_revisions (id, faq_id, question, answer, action, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), f.ID, f.Question, f.Answer, string(action), actor, at,
	)
	return eris.Wrap(err, "sqlite: insert faq revision")
}

func insertSQLiteEvent(ctx context.Context, tx *sql.Tx, candidateID string, status model.SimilarStatus, actor, reason string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO similar_faq_events (id, candidate_id, status, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), candidateID, string(status), actor, nullIfEmpty(reason), at,
	)
	return eris.Wrap(err, "sqlite: insert similar event")
}

// helpers

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scannable interface {
	Scan(dest ...any) error
}

// nullIfEmpty maps "" to SQL NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// deref returns *p, or nil for a nil pointer, so drivers always see plain values.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

func scanSQLiteCandidate(row scannable) (*model.Candidate, error) {
	var c model.Candidate
	var (
		generated, rejReason, rejNote, editedAnswer, editedQuestion sql.NullString
		rating, faqID, reviewedBy                                   sql.NullString
		emb, fact, contra, comp, hall, conf, final                  sql.NullFloat64
		lastSkipped, reviewedAt                                     sql.NullTime
		protocol, routing, status                                   string
	)
	err := row.Scan(
		&c.ID, &c.QuestionText, &c.StaffAnswer, &generated, &protocol,
		&emb, &fact, &contra, &comp, &hall,
		&conf, &final, &routing, &status, &rejReason, &rejNote,
		&c.IsCalibrationSample, &editedAnswer, &editedQuestion, &c.Category, &c.Source,
		&c.AnswerVersion, &rating, &c.SkipCount, &lastSkipped, &faqID, &reviewedBy, &reviewedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.GeneratedAnswer = strPtr(generated)
	c.Protocol = model.Protocol(protocol)
	c.Metrics = model.Metrics{
		EmbeddingSimilarity: floatPtr(emb),
		FactualAlignment:    floatPtr(fact),
		ContradictionScore:  floatPtr(contra),
		Completeness:        floatPtr(comp),
		HallucinationRisk:   floatPtr(hall),
	}
	c.GenerationConfidence = floatPtr(conf)
	c.FinalScore = floatPtr(final)
	c.Routing = model.Routing(routing)
	c.ReviewStatus = model.ReviewStatus(status)
	c.RejectionReason = model.RejectionReason(rejReason.String)
	c.RejectionNote = rejNote.String
	c.EditedStaffAnswer = strPtr(editedAnswer)
	c.EditedQuestionText = strPtr(editedQuestion)
	if rating.Valid {
		r := model.Rating(rating.String)
		c.Rating = &r
	}
	c.LastSkippedAt = timePtr(lastSkipped)
	c.FAQID = strPtr(faqID)
	c.ReviewedBy = reviewedBy.String
	c.ReviewedAt = timePtr(reviewedAt)
	return &c, nil
}

func scanSQLiteSimilar(row scannable) (*model.SimilarFaqCandidate, error) {
	var c model.SimilarFaqCandidate
	var status string
	var mode, resultFAQ, resolvedBy, reason sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.ExtractedQuestion, &c.ExtractedAnswer, &c.ExtractedCategory,
		&c.MatchedFAQID, &c.MatchedQuestion, &c.MatchedAnswer, &c.Similarity, &c.Tier, &status, &mode,
		&resultFAQ, &resolvedAt, &resolvedBy, &reason, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.SimilarStatus(status)
	c.MergeMode = model.MergeMode(mode.String)
	c.ResultFAQID = resultFAQ.String
	c.ResolvedAt = timePtr(resolvedAt)
	c.ResolvedBy = resolvedBy.String
	c.DismissReason = reason.String
	return &c, nil
}

func scanSQLiteFAQ(row scannable) (*model.FAQ, error) {
	var f model.FAQ
	var protocol string
	if err := row.Scan(&f.ID, &f.Question, &f.Answer, &f.Category, &protocol, &f.Source, &f.SourceID,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Protocol = model.Protocol(protocol)
	return &f, nil
}
