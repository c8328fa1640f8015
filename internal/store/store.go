package store

import (
	"context"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

// CandidateFilter specifies criteria for listing candidates.
type CandidateFilter struct {
	Routing model.Routing      `json:"routing,omitempty"`
	Status  model.ReviewStatus `json:"status,omitempty"`
	// Unscored selects pending candidates with a generated answer but no final score.
	Unscored bool `json:"unscored,omitempty"`
	Limit    int  `json:"limit,omitempty"`
	Offset   int  `json:"offset,omitempty"`
}

// SimilarFilter specifies criteria for listing similar-FAQ candidates.
type SimilarFilter struct {
	Status model.SimilarStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// RatingInput is a reviewer rating for a specific answer version.
type RatingInput struct {
	CandidateID   string
	AnswerVersion int
	Rating        model.Rating
	Actor         string
}

// Resolution describes the outcome written when a similar-FAQ candidate is resolved.
type Resolution struct {
	Actor  string
	Reason string
	// FAQ is inserted on approve.
	FAQ *model.FAQ
	// Mode and Rewrite apply on merge. Rewrite receives the matched FAQ as
	// read inside the transaction and returns its new content.
	Mode    model.MergeMode
	Rewrite func(current model.FAQ) model.FAQ
}

// Store defines the persistence interface for the review engine. Every
// mutation is a compare-and-swap on the record's pending state and runs in a
// single transaction.
type Store interface {
	// Candidates
	CreateCandidate(ctx context.Context, c *model.Candidate) error
	BulkCreateCandidates(ctx context.Context, cs []model.Candidate) (int64, error)
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.Candidate, error)
	EditCandidate(ctx context.Context, id string, edit model.CandidateEdit) error
	SetScores(ctx context.Context, id string, answerVersion int, up model.ScoreUpdate) error
	ReplaceAnswer(ctx context.Context, id string, answerVersion int, up model.AnswerUpdate) error
	ApproveCandidate(ctx context.Context, id, actor string, faq *model.FAQ) error
	RejectCandidate(ctx context.Context, id, actor string, reason model.RejectionReason, note string) error
	SkipCandidate(ctx context.Context, id, actor string) error
	// RateCandidate records a rating and, when eligible reports true for the
	// candidate's routing, atomically counts it as a calibration sample.
	// It returns whether the rating was counted.
	RateCandidate(ctx context.Context, in RatingInput, eligible func(model.Routing) bool) (bool, error)

	// Calibration
	EnsureCalibration(ctx context.Context, samplesRequired int) error
	GetCalibration(ctx context.Context) (*model.CalibrationStatus, error)

	// Similar FAQ candidates
	CreateSimilarCandidate(ctx context.Context, c *model.SimilarFaqCandidate) error
	GetSimilarCandidate(ctx context.Context, id string) (*model.SimilarFaqCandidate, error)
	ListSimilarCandidates(ctx context.Context, filter SimilarFilter) ([]model.SimilarFaqCandidate, error)
	ResolveSimilar(ctx context.Context, id string, to model.SimilarStatus, res Resolution) error
	RestoreSimilar(ctx context.Context, id, actor string) error
	ListSimilarEvents(ctx context.Context, candidateID string) ([]model.SimilarEvent, error)

	// FAQs
	CreateFAQ(ctx context.Context, f *model.FAQ, actor string) error
	GetFAQ(ctx context.Context, id string) (*model.FAQ, error)
	ListFAQRevisions(ctx context.Context, faqID string) ([]model.FAQRevision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// candidateColumns is the column list shared by candidate selects.
const candidateColumns = `id, question_text, staff_answer, generated_answer, protocol,
	embedding_similarity, factual_alignment, contradiction_score, completeness, hallucination_risk,
	generation_confidence, final_score, routing, review_status, rejection_reason, rejection_note,
	is_calibration_sample, edited_staff_answer, edited_question_text, category, source,
	answer_version, rating, skip_count, last_skipped_at, faq_id, reviewed_by, reviewed_at,
	created_at, updated_at`

// similarColumns is the column list shared by similar-FAQ candidate selects.
const similarColumns = `id, extracted_question, extracted_answer, extracted_category,
	matched_faq_id, matched_question, matched_answer, similarity, tier, status, merge_mode,
	result_faq_id, resolved_at, resolved_by, dismiss_reason, created_at`

const faqColumns = `id, question, answer, category, protocol, source, source_id, created_at, updated_at`

// clearScoresSQL drops the metrics of a replaced answer that arrives unscored.
// Routing is kept; a nil final score blocks auto-send and marks the candidate
// for rescoring.
const clearScoresSQL = `, embedding_similarity = NULL, factual_alignment = NULL,
			contradiction_score = NULL, completeness = NULL, hallucination_risk = NULL,
			generation_confidence = NULL, final_score = NULL`

// defaultListLimit caps list queries when no limit is given.
const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// ratingConflict classifies a failed rating CAS from the current row state.
func ratingConflict(id string, status model.ReviewStatus, version int, rated bool, wantVersion int) error {
	switch {
	case status != model.ReviewPending:
		return conflict("candidate", id, string(status))
	case version != wantVersion:
		return conflictMsg("candidate", id, "answer was regenerated")
	case rated:
		return conflictMsg("candidate", id, "answer version already rated")
	default:
		return conflict("candidate", id, string(status))
	}
}

func conflict(entity, id, current string) error {
	return apperr.Conflict(entity, id, current)
}

func conflictMsg(entity, id, msg string) error {
	return &apperr.ConflictError{Entity: entity, ID: id, Msg: msg}
}

// similarConflict classifies a failed similar-FAQ CAS.
func similarConflict(id string, status model.SimilarStatus, want model.SimilarStatus) error {
	if want == model.SimilarDismissed {
		return &apperr.ConflictError{Entity: "similar_faq_candidate", ID: id, Current: string(status), Msg: "not dismissed"}
	}
	return conflict("similar_faq_candidate", id, string(status))
}

// resolutionCheck validates a Resolution against its target status before any write.
func resolutionCheck(to model.SimilarStatus, res Resolution) error {
	switch to {
	case model.SimilarApproved:
		if res.FAQ == nil {
			return apperr.Validation("faq", "required to approve")
		}
	case model.SimilarMerged:
		if !res.Mode.Valid() {
			return apperr.Validation("mode", "must be replace or append")
		}
		if res.Rewrite == nil {
			return apperr.Validation("mode", "merge requires rewrite")
		}
	case model.SimilarDismissed:
	default:
		return apperr.Validation("status", "unsupported resolution "+string(to))
	}
	return nil
}

func revisionAction(mode model.MergeMode) model.RevisionAction {
	if mode == model.MergeAppend {
		return model.RevisionAppend
	}
	return model.RevisionReplace
}

// scoreFields flattens a ScoreUpdate into column order:
// five metrics, generation confidence, final score, routing.
func scoreFields(up model.ScoreUpdate) []any {
	m := up.Metrics
	return []any{
		deref(m.EmbeddingSimilarity), deref(m.FactualAlignment), deref(m.ContradictionScore),
		deref(m.Completeness), deref(m.HallucinationRisk),
		deref(up.GenerationConfidence), deref(up.FinalScore), string(up.Routing),
	}
}

func ratingCounts(r model.Rating) (good, needsImprovement int) {
	if r == model.RatingGood {
		return 1, 0
	}
	return 0, 1
}
