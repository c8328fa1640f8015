package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/db"
	"github.com/bisq-support/review-engine/internal/model"
)

// foreignKeyViolation is the SQLSTATE raised when a referenced row is missing.
const foreignKeyViolation = "23503"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	question_text         TEXT NOT NULL,
	staff_answer          TEXT NOT NULL,
	generated_answer      TEXT,
	protocol              TEXT NOT NULL DEFAULT '',
	embedding_similarity  DOUBLE PRECISION,
	factual_alignment     DOUBLE PRECISION,
	contradiction_score   DOUBLE PRECISION,
	completeness          DOUBLE PRECISION,
	hallucination_risk    DOUBLE PRECISION,
	generation_confidence DOUBLE PRECISION,
	final_score           DOUBLE PRECISION,
	routing               TEXT NOT NULL DEFAULT 'FULL_REVIEW',
	review_status         TEXT NOT NULL DEFAULT 'pending',
	rejection_reason      TEXT,
	rejection_note        TEXT,
	is_calibration_sample BOOLEAN NOT NULL DEFAULT false,
	edited_staff_answer   TEXT,
	edited_question_text  TEXT,
	category              TEXT NOT NULL DEFAULT '',
	source                TEXT NOT NULL DEFAULT '',
	answer_version        INTEGER NOT NULL DEFAULT 1,
	rating                TEXT,
	skip_count            INTEGER NOT NULL DEFAULT 0,
	last_skipped_at       TIMESTAMPTZ,
	faq_id                TEXT,
	reviewed_by           TEXT,
	reviewed_at           TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT candidates_final_score_range CHECK (final_score IS NULL OR (final_score >= 0 AND final_score <= 1))
);

CREATE TABLE IF NOT EXISTS candidate_ratings (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	candidate_id   TEXT NOT NULL REFERENCES candidates(id),
	answer_version INTEGER NOT NULL,
	rating         TEXT NOT NULL,
	rated_by       TEXT NOT NULL,
	counted        BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (candidate_id, answer_version)
);

CREATE TABLE IF NOT EXISTS calibration (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	samples_collected       INTEGER NOT NULL DEFAULT 0,
	samples_required        INTEGER NOT NULL,
	good_count              INTEGER NOT NULL DEFAULT 0,
	needs_improvement_count INTEGER NOT NULL DEFAULT 0,
	completed_at            TIMESTAMPTZ,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT calibration_bounded CHECK (samples_collected <= samples_required)
);

CREATE TABLE IF NOT EXISTS faqs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	protocol   TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS faq_revisions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	faq_id     TEXT NOT NULL REFERENCES faqs(id),
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS similar_faq_candidates (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	extracted_question TEXT NOT NULL,
	extracted_answer   TEXT NOT NULL,
	extracted_category TEXT NOT NULL DEFAULT '',
	matched_faq_id     TEXT NOT NULL REFERENCES faqs(id),
	matched_question   TEXT NOT NULL,
	matched_answer     TEXT NOT NULL,
	similarity         DOUBLE PRECISION NOT NULL,
	tier               TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	merge_mode         TEXT,
	result_faq_id      TEXT,
	resolved_at        TIMESTAMPTZ,
	resolved_by        TEXT,
	dismiss_reason     TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS similar_faq_events (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	candidate_id TEXT NOT NULL REFERENCES similar_faq_candidates(id),
	status       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	reason       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_candidates_queue ON candidates(review_status, routing, skip_count, created_at);
CREATE INDEX IF NOT EXISTS idx_candidates_unscored ON candidates(created_at) WHERE final_score IS NULL AND review_status = 'pending';
CREATE INDEX IF NOT EXISTS idx_candidate_ratings_candidate ON candidate_ratings(candidate_id);
CREATE INDEX IF NOT EXISTS idx_faq_revisions_faq ON faq_revisions(faq_id, created_at);
CREATE INDEX IF NOT EXISTS idx_similar_status ON similar_faq_candidates(status, created_at);
CREATE INDEX IF NOT EXISTS idx_similar_events_candidate ON similar_faq_events(candidate_id, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// pgExecer is satisfied by db.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgPlaceholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// candidateColumnList is candidateColumns split for COPY.
func candidateColumnList() []string {
	parts := strings.Split(candidateColumns, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

var pgInsertCandidate = fmt.Sprintf(`INSERT INTO candidates (%s) VALUES (%s)`, candidateColumns, pgPlaceholders(30))

// --- candidates ---

func (s *PostgresStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	prepareCandidate(c)
	if _, err := s.pool.Exec(ctx, pgInsertCandidate, candidateValues(c)...); err != nil {
		return eris.Wrap(err, "postgres: insert candidate")
	}
	return nil
}

// BulkCreateCandidates loads candidates with COPY through db.BulkUpsert.
// Existing ids are left untouched.
func (s *PostgresStore) BulkCreateCandidates(ctx context.Context, cs []model.Candidate) (int64, error) {
	rows := make([][]any, len(cs))
	for i := range cs {
		prepareCandidate(&cs[i])
		rows[i] = candidateValues(&cs[i])
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "candidates",
		Columns:      candidateColumnList(),
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert candidates")
	}
	return n, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanPgCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("candidate", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE 1=1`
	var args []any
	argN := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND review_status = $%d`, argN)
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.Routing != "" {
		query += fmt.Sprintf(` AND routing = $%d`, argN)
		args = append(args, string(filter.Routing))
		argN++
	}
	if filter.Unscored {
		query += ` AND review_status = 'pending' AND final_score IS NULL AND generated_answer IS NOT NULL`
	}
	query += fmt.Sprintf(` ORDER BY skip_count ASC, created_at ASC, id ASC LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

// candidateCAS runs an UPDATE guarded on review_status = 'pending' and
// classifies a zero-row result.
func (s *PostgresStore) candidateCAS(ctx context.Context, q pgExecer, id, query string, args ...any) error {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, q, id, 0)
}

func (s *PostgresStore) classifyCandidate(ctx context.Context, q pgExecer, id string, wantVersion int) error {
	var status string
	var version int
	var rated bool
	err := q.QueryRow(ctx,
		`SELECT review_status, answer_version, rating IS NOT NULL FROM candidates WHERE id = $1`, id,
	).Scan(&status, &version, &rated)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("candidate", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: classify candidate %s", id)
	}
	if wantVersion == 0 {
		return conflict("candidate", id, status)
	}
	return ratingConflict(id, model.ReviewStatus(status), version, rated, wantVersion)
}

func (s *PostgresStore) EditCandidate(ctx context.Context, id string, edit model.CandidateEdit) error {
	return s.candidateCAS(ctx, s.pool, id,
		`UPDATE candidates SET
			edited_question_text = COALESCE($1, edited_question_text),
			edited_staff_answer = COALESCE($2, edited_staff_answer),
			category = COALESCE($3, category),
			updated_at = $4
		WHERE id = $5 AND review_status = 'pending'`,
		deref(edit.QuestionText), deref(edit.StaffAnswer), deref(edit.Category), time.Now().UTC(), id,
	)
}

func (s *PostgresStore) SetScores(ctx context.Context, id string, answerVersion int, up model.ScoreUpdate) error {
	args := append(scoreFields(up), time.Now().UTC(), id, answerVersion)
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET
			embedding_similarity = $1, factual_alignment = $2, contradiction_score = $3,
			completeness = $4, hallucination_risk = $5,
			generation_confidence = $6, final_score = $7, routing = $8, updated_at = $9
		WHERE id = $10 AND answer_version = $11 AND review_status = 'pending'`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set scores %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, s.pool, id, answerVersion)
}

func (s *PostgresStore) ReplaceAnswer(ctx context.Context, id string, answerVersion int, up model.AnswerUpdate) error {
	query := `UPDATE candidates SET
			protocol = $1, generated_answer = $2, answer_version = answer_version + 1,
			rating = NULL, is_calibration_sample = false, updated_at = $3`
	args := []any{string(up.Protocol), up.GeneratedAnswer, time.Now().UTC()}
	next := 4
	if up.Scores != nil {
		query += `, embedding_similarity = $4, factual_alignment = $5, contradiction_score = $6,
			completeness = $7, hallucination_risk = $8,
			generation_confidence = $9, final_score = $10, routing = $11`
		args = append(args, scoreFields(*up.Scores)...)
		next = 12
	} else {
		query += clearScoresSQL
	}
	query += fmt.Sprintf(` WHERE id = $%d AND answer_version = $%d AND review_status = 'pending'`, next, next+1)
	args = append(args, id, answerVersion)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: replace answer %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return s.classifyCandidate(ctx, s.pool, id, answerVersion)
}

func (s *PostgresStore) ApproveCandidate(ctx context.Context, id, actor string, faq *model.FAQ) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin approve")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	prepareFAQ(faq)
	now := time.Now().UTC()
	if err := s.candidateCAS(ctx, tx, id,
		`UPDATE candidates SET review_status = 'approved', faq_id = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $4
		WHERE id = $5 AND review_status = 'pending'`,
		faq.ID, actor, now, now, id,
	); err != nil {
		return err
	}
	if err := insertPgFAQ(ctx, tx, faq, actor); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit approve")
}

func (s *PostgresStore) RejectCandidate(ctx context.Context, id, actor string, reason model.RejectionReason, note string) error {
	now := time.Now().UTC()
	return s.candidateCAS(ctx, s.pool, id,
		`UPDATE candidates SET review_status = 'rejected', rejection_reason = $1, rejection_note = $2,
			reviewed_by = $3, reviewed_at = $4, updated_at = $5
		WHERE id = $6 AND review_status = 'pending'`,
		string(reason), nullIfEmpty(note), actor, now, now, id,
	)
}

func (s *PostgresStore) SkipCandidate(ctx context.Context, id, actor string) error {
	now := time.Now().UTC()
	return s.candidateCAS(ctx, s.pool, id,
		`UPDATE candidates SET skip_count = skip_count + 1, last_skipped_at = $1, updated_at = $2
		WHERE id = $3 AND review_status = 'pending'`,
		now, now, id,
	)
}

func (s *PostgresStore) RateCandidate(ctx context.Context, in RatingInput, eligible func(model.Routing) bool) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin rate")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var routing string
	err = tx.QueryRow(ctx,
		`UPDATE candidates SET rating = $1, updated_at = $2
		WHERE id = $3 AND answer_version = $4 AND rating IS NULL
			AND review_status = 'pending' AND generated_answer IS NOT NULL
		RETURNING routing`,
		string(in.Rating), now, in.CandidateID, in.AnswerVersion,
	).Scan(&routing)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, s.classifyCandidate(ctx, tx, in.CandidateID, in.AnswerVersion)
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: rate candidate %s", in.CandidateID)
	}

	counted := false
	if eligible != nil && eligible(model.Routing(routing)) {
		good, ni := ratingCounts(in.Rating)
		tag, err := tx.Exec(ctx,
			`UPDATE calibration SET
				samples_collected = samples_collected + 1,
				good_count = good_count + $1,
				needs_improvement_count = needs_improvement_count + $2,
				completed_at = CASE WHEN samples_collected + 1 >= samples_required THEN $3 ELSE completed_at END,
				updated_at = $3
			WHERE id = 1 AND samples_collected < samples_required`,
			good, ni, now,
		)
		if err != nil {
			return false, eris.Wrap(err, "postgres: increment calibration")
		}
		counted = tag.RowsAffected() > 0
		if counted {
			if _, err := tx.Exec(ctx,
				`UPDATE candidates SET is_calibration_sample = true WHERE id = $1`, in.CandidateID,
			); err != nil {
				return false, eris.Wrap(err, "postgres: mark calibration sample")
			}
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO candidate_ratings (id, candidate_id, answer_version, rating, rated_by, counted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), in.CandidateID, in.AnswerVersion, string(in.Rating), in.Actor, counted, now,
	); err != nil {
		return false, eris.Wrap(err, "postgres: insert rating")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit rate")
	}
	return counted, nil
}

// --- calibration ---

func (s *PostgresStore) EnsureCalibration(ctx context.Context, samplesRequired int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calibration (id, samples_collected, samples_required, updated_at)
		VALUES (1, 0, $1, $2) ON CONFLICT (id) DO NOTHING`,
		samplesRequired, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: ensure calibration")
}

func (s *PostgresStore) GetCalibration(ctx context.Context) (*model.CalibrationStatus, error) {
	var st model.CalibrationStatus
	err := s.pool.QueryRow(ctx,
		`SELECT samples_collected, samples_required, good_count, needs_improvement_count, completed_at
		FROM calibration WHERE id = 1`,
	).Scan(&st.SamplesCollected, &st.SamplesRequired, &st.GoodCount, &st.NeedsImprovementCount, &st.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("calibration", "1")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get calibration")
	}
	st.IsComplete = st.SamplesCollected >= st.SamplesRequired
	return &st, nil
}

// --- similar FAQ candidates ---

func (s *PostgresStore) CreateSimilarCandidate(ctx context.Context, c *model.SimilarFaqCandidate) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.SimilarPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO similar_faq_candidates (`+similarColumns+`) VALUES (`+pgPlaceholders(16)+`)`,
		c.ID, c.ExtractedQuestion, c.ExtractedAnswer, c.ExtractedCategory,
		c.MatchedFAQID, c.MatchedQuestion, c.MatchedAnswer, c.Similarity, c.Tier, string(c.Status),
		nullIfEmpty(string(c.MergeMode)), nullIfEmpty(c.ResultFAQID), deref(c.ResolvedAt),
		nullIfEmpty(c.ResolvedBy), nullIfEmpty(c.DismissReason), c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return apperr.NotFound("faq", c.MatchedFAQID)
	}
	return eris.Wrap(err, "postgres: insert similar candidate")
}

func (s *PostgresStore) GetSimilarCandidate(ctx context.Context, id string) (*model.SimilarFaqCandidate, error) {
	c, err := scanPgSimilar(s.pool.QueryRow(ctx,
		`SELECT `+similarColumns+` FROM similar_faq_candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("similar_faq_candidate", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get similar candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListSimilarCandidates(ctx context.Context, filter SimilarFilter) ([]model.SimilarFaqCandidate, error) {
	query := `SELECT ` + similarColumns + ` FROM similar_faq_candidates`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list similar candidates")
	}
	defer rows.Close()

	var out []model.SimilarFaqCandidate
	for rows.Next() {
		c, err := scanPgSimilar(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan similar candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate similar candidates")
}

func (s *PostgresStore) ResolveSimilar(ctx context.Context, id string, to model.SimilarStatus, res Resolution) error {
	if err := resolutionCheck(to, res); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin resolve")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var matchedFAQID string
	err = tx.QueryRow(ctx,
		`UPDATE similar_faq_candidates SET status = $1, merge_mode = $2, resolved_at = $3, resolved_by = $4, dismiss_reason = $5
		WHERE id = $6 AND status = 'pending'
		RETURNING matched_faq_id`,
		string(to), nullIfEmpty(string(res.Mode)), now, res.Actor, nullIfEmpty(res.Reason), id,
	).Scan(&matchedFAQID)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.classifySimilar(ctx, tx, id, model.SimilarPending)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve similar candidate %s", id)
	}

	var resultFAQID string
	switch to {
	case model.SimilarApproved:
		prepareFAQ(res.FAQ)
		if err := insertPgFAQ(ctx, tx, res.FAQ, res.Actor); err != nil {
			return err
		}
		resultFAQID = res.FAQ.ID
	case model.SimilarMerged:
		if err := rewritePgFAQ(ctx, tx, matchedFAQID, res, now); err != nil {
			return err
		}
		resultFAQID = matchedFAQID
	}

	if resultFAQID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE similar_faq_candidates SET result_faq_id = $1 WHERE id = $2`, resultFAQID, id,
		); err != nil {
			return eris.Wrap(err, "postgres: set result faq")
		}
	}
	if err := insertPgEvent(ctx, tx, id, to, res.Actor, res.Reason, now); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit resolve")
}

// rewritePgFAQ locks the matched FAQ, records its prior content and overwrites it.
func rewritePgFAQ(ctx context.Context, tx pgx.Tx, faqID string, res Resolution, now time.Time) error {
	cur, err := scanPgFAQ(tx.QueryRow(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = $1 FOR UPDATE`, faqID))
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("faq", faqID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read faq %s", faqID)
	}

	if err := insertPgRevision(ctx, tx, cur, revisionAction(res.Mode), res.Actor, now); err != nil {
		return err
	}

	next := res.Rewrite(*cur)
	if _, err := tx.Exec(ctx,
		`UPDATE faqs SET question = $1, answer = $2, category = $3, updated_at = $4 WHERE id = $5`,
		next.Question, next.Answer, next.Category, now, faqID,
	); err != nil {
		return eris.Wrapf(err, "postgres: update faq %s", faqID)
	}
	return nil
}

// RestoreSimilar reopens a dismissed candidate. Resolution columns are
// cleared; the dismissal stays in similar_faq_events.
func (s *PostgresStore) RestoreSimilar(ctx context.Context, id, actor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin restore")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE similar_faq_candidates SET status = 'pending', merge_mode = NULL, resolved_at = NULL,
			resolved_by = NULL, dismiss_reason = NULL
		WHERE id = $1 AND status = 'dismissed'`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: restore similar candidate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.classifySimilar(ctx, tx, id, model.SimilarDismissed)
	}
	if err := insertPgEvent(ctx, tx, id, model.SimilarPending, actor, "restored", time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit restore")
}

func (s *PostgresStore) classifySimilar(ctx context.Context, q pgExecer, id string, want model.SimilarStatus) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM similar_faq_candidates WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("similar_faq_candidate", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: classify similar candidate %s", id)
	}
	return similarConflict(id, model.SimilarStatus(status), want)
}

func (s *PostgresStore) ListSimilarEvents(ctx context.Context, candidateID string) ([]model.SimilarEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_id, status, actor, reason, created_at
		FROM similar_faq_events WHERE candidate_id = $1 ORDER BY created_at ASC, id ASC`, candidateID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list similar events")
	}
	defer rows.Close()

	var out []model.SimilarEvent
	for rows.Next() {
		var e model.SimilarEvent
		var status string
		var reason *string
		if err := rows.Scan(&e.ID, &e.CandidateID, &status, &e.Actor, &reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan similar event")
		}
		e.Status = model.SimilarStatus(status)
		e.Reason = strVal(reason)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate similar events")
}

// --- FAQs ---

func (s *PostgresStore) CreateFAQ(ctx context.Context, f *model.FAQ, actor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create faq")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	prepareFAQ(f)
	if err := insertPgFAQ(ctx, tx, f, actor); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create faq")
}

func (s *PostgresStore) GetFAQ(ctx context.Context, id string) (*model.FAQ, error) {
	f, err := scanPgFAQ(s.pool.QueryRow(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("faq", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get faq %s", id)
	}
	return f, nil
}

func (s *PostgresStore) ListFAQRevisions(ctx context.Context, faqID string) ([]model.FAQRevision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, faq_id, question, answer, action, actor, created_at
		FROM faq_revisions WHERE faq_id = $1 ORDER BY created_at ASC, id ASC`, faqID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list faq revisions")
	}
	defer rows.Close()

	var out []model.FAQRevision
	for rows.Next() {
		var r model.FAQRevision
		var action string
		if err := rows.Scan(&r.ID, &r.FAQID, &r.Question, &r.Answer, &action, &r.Actor, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan faq revision")
		}
		r.Action = model.RevisionAction(action)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate faq revisions")
}

func insertPgFAQ(ctx context.Context, tx pgx.Tx, f *model.FAQ, actor string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO faqs (`+faqColumns+`) VALUES (`+pgPlaceholders(9)+`)`,
		f.ID, f.Question, f.Answer, f.Category, string(f.Protocol), f.Source, f.SourceID, f.CreatedAt, f.UpdatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert faq")
	}
	return insertPgRevision(ctx, tx, f, model.RevisionCreate, actor, f.CreatedAt)
}

func insertPgRevision(ctx context.Context, tx pgx.Tx, f *model.FAQ, action model.RevisionAction, actor string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO faq_revisions (id, faq_id, question, answer, action, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), f.ID, f.Question, f.Answer, string(action), actor, at,
	)
	return eris.Wrap(err, "postgres: insert faq revision")
}

func insertPgEvent(ctx context.Context, tx pgx.Tx, candidateID string, status model.SimilarStatus, actor, reason string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO similar_faq_events (id, candidate_id, status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), candidateID, string(status), actor, nullIfEmpty(reason), at,
	)
	return eris.Wrap(err, "postgres: insert similar event")
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func scanPgCandidate(row scannable) (*model.Candidate, error) {
	var c model.Candidate
	var (
		protocol, routing, status  string
		rejReason, rejNote, rating *string
		reviewedBy                 *string
	)
	m := &c.Metrics
	err := row.Scan(
		&c.ID, &c.QuestionText, &c.StaffAnswer, &c.GeneratedAnswer, &protocol,
		&m.EmbeddingSimilarity, &m.FactualAlignment, &m.ContradictionScore, &m.Completeness, &m.HallucinationRisk,
		&c.GenerationConfidence, &c.FinalScore, &routing, &status, &rejReason, &rejNote,
		&c.IsCalibrationSample, &c.EditedStaffAnswer, &c.EditedQuestionText, &c.Category, &c.Source,
		&c.AnswerVersion, &rating, &c.SkipCount, &c.LastSkippedAt, &c.FAQID, &reviewedBy, &c.ReviewedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Protocol = model.Protocol(protocol)
	c.Routing = model.Routing(routing)
	c.ReviewStatus = model.ReviewStatus(status)
	c.RejectionReason = model.RejectionReason(strVal(rejReason))
	c.RejectionNote = strVal(rejNote)
	c.ReviewedBy = strVal(reviewedBy)
	if rating != nil {
		r := model.Rating(*rating)
		c.Rating = &r
	}
	return &c, nil
}

func scanPgSimilar(row scannable) (*model.SimilarFaqCandidate, error) {
	var c model.SimilarFaqCandidate
	var status string
	var mode, resultFAQ, resolvedBy, reason *string
	err := row.Scan(
		&c.ID, &c.ExtractedQuestion, &c.ExtractedAnswer, &c.ExtractedCategory,
		&c.MatchedFAQID, &c.MatchedQuestion, &c.MatchedAnswer, &c.Similarity, &c.Tier, &status, &mode,
		&resultFAQ, &c.ResolvedAt, &resolvedBy, &reason, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.SimilarStatus(status)
	c.MergeMode = model.MergeMode(strVal(mode))
	c.ResultFAQID = strVal(resultFAQ)
	c.ResolvedBy = strVal(resolvedBy)
	c.DismissReason = strVal(reason)
	return &c, nil
}

func scanPgFAQ(row scannable) (*model.FAQ, error) {
	var f model.FAQ
	var protocol string
	if err := row.Scan(&f.ID, &f.Question, &f.Answer, &f.Category, &protocol, &f.Source, &f.SourceID,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Protocol = model.Protocol(protocol)
	return &f, nil
}
