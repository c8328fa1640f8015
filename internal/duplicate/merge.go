// Package duplicate resolves near-duplicate FAQ matches: it checks new
// questions against the knowledge base and applies reviewer decisions to the
// similar-FAQ review queue.
package duplicate

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
	"github.com/bisq-support/review-engine/internal/store"
)

// AppendSeparator joins the existing answer and the extracted answer on append.
const AppendSeparator = "\n\n---\n\n"

// Store is the persistence the engine needs.
type Store interface {
	CreateSimilarCandidate(ctx context.Context, c *model.SimilarFaqCandidate) error
	GetSimilarCandidate(ctx context.Context, id string) (*model.SimilarFaqCandidate, error)
	ListSimilarCandidates(ctx context.Context, filter store.SimilarFilter) ([]model.SimilarFaqCandidate, error)
	ResolveSimilar(ctx context.Context, id string, to model.SimilarStatus, res store.Resolution) error
	RestoreSimilar(ctx context.Context, id, actor string) error
	ListSimilarEvents(ctx context.Context, candidateID string) ([]model.SimilarEvent, error)
	GetFAQ(ctx context.Context, id string) (*model.FAQ, error)
}

// MergeContent returns the question and answer an FAQ holds after merging c
// with mode. It reads c's matched fields as the FAQ's current content.
func MergeContent(c model.SimilarFaqCandidate, mode model.MergeMode) (question, answer string, err error) {
	switch mode {
	case model.MergeReplace:
		return c.ExtractedQuestion, c.ExtractedAnswer, nil
	case model.MergeAppend:
		return c.MatchedQuestion, c.MatchedAnswer + AppendSeparator + c.ExtractedAnswer, nil
	default:
		return "", "", apperr.Validation("mode", "must be replace or append")
	}
}

// Engine applies reviewer decisions to similar-FAQ candidates.
type Engine struct {
	store         Store
	tiers         *scoring.TierClassifier
	restoreWindow time.Duration
	now           func() time.Time
}

// NewEngine creates an Engine. A nil tier classifier uses the default bounds.
func NewEngine(st Store, tiers *scoring.TierClassifier, restoreWindow time.Duration) *Engine {
	if tiers == nil {
		tiers = scoring.DefaultTierClassifier()
	}
	return &Engine{store: st, tiers: tiers, restoreWindow: restoreWindow, now: time.Now}
}

// Submit queues a match from the extraction pipeline. Matches below the
// lowest surfaced tier are rejected.
func (e *Engine) Submit(ctx context.Context, c *model.SimilarFaqCandidate) error {
	if strings.TrimSpace(c.ExtractedQuestion) == "" || strings.TrimSpace(c.ExtractedAnswer) == "" {
		return apperr.Validation("extracted", "question and answer are required")
	}
	if c.MatchedFAQID == "" {
		return apperr.Validation("matched_faq_id", "required")
	}
	if c.Similarity < 0 || c.Similarity > 1 {
		return apperr.Validation("similarity", "must be within [0,1]")
	}
	tier := e.tiers.Classify(c.Similarity)
	if !tier.Surfaced() {
		return apperr.Validation("similarity", "below the related tier; not surfaced")
	}

	if _, err := e.store.GetFAQ(ctx, c.MatchedFAQID); err != nil {
		return err
	}

	c.Tier = string(tier)
	c.Status = model.SimilarPending
	c.MergeMode, c.ResultFAQID, c.ResolvedBy, c.DismissReason = "", "", "", ""
	c.ResolvedAt = nil
	if err := e.store.CreateSimilarCandidate(ctx, c); err != nil {
		if apperr.IsNotFound(err) {
			return err
		}
		return eris.Wrap(err, "duplicate: submit")
	}
	zap.L().Info("duplicate: candidate queued",
		zap.String("similar_candidate_id", c.ID),
		zap.String("matched_faq_id", c.MatchedFAQID),
		zap.Float64("similarity", c.Similarity),
		zap.String("tier", c.Tier),
	)
	return nil
}

// Item is a queued candidate with its recommended action.
type Item struct {
	model.SimilarFaqCandidate
	RecommendedAction string `json:"recommended_action"`
}

// Get returns one candidate with its recommended action.
func (e *Engine) Get(ctx context.Context, id string) (*Item, error) {
	c, err := e.store.GetSimilarCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.item(*c), nil
}

// List returns candidates matching filter with their recommended actions.
func (e *Engine) List(ctx context.Context, filter store.SimilarFilter) ([]Item, error) {
	cs, err := e.store.ListSimilarCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(cs))
	for _, c := range cs {
		out = append(out, *e.item(c))
	}
	return out, nil
}

func (e *Engine) item(c model.SimilarFaqCandidate) *Item {
	return &Item{SimilarFaqCandidate: c, RecommendedAction: e.tiers.Classify(c.Similarity).ReviewAction()}
}

// Merge folds the extracted content into the matched FAQ and returns the FAQ
// as merged. The prior FAQ content is kept as a revision.
func (e *Engine) Merge(ctx context.Context, id string, mode model.MergeMode, actor string) (*model.FAQ, error) {
	if !mode.Valid() {
		return nil, apperr.Validation("mode", "must be replace or append")
	}
	c, err := e.store.GetSimilarCandidate(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := *c
	err = e.store.ResolveSimilar(ctx, id, model.SimilarMerged, store.Resolution{
		Actor: actor,
		Mode:  mode,
		Rewrite: func(current model.FAQ) model.FAQ {
			merged := snapshot
			merged.MatchedQuestion, merged.MatchedAnswer = current.Question, current.Answer
			current.Question, current.Answer, _ = MergeContent(merged, mode)
			if mode == model.MergeReplace && snapshot.ExtractedCategory != "" {
				current.Category = snapshot.ExtractedCategory
			}
			return current
		},
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("duplicate: merged",
		zap.String("similar_candidate_id", id),
		zap.String("faq_id", c.MatchedFAQID),
		zap.String("mode", string(mode)),
		zap.String("actor", actor),
	)
	return e.store.GetFAQ(ctx, c.MatchedFAQID)
}

// Approve adds the extracted content as a new FAQ.
func (e *Engine) Approve(ctx context.Context, id, actor string) (*model.FAQ, error) {
	c, err := e.store.GetSimilarCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	faq := &model.FAQ{
		Question: c.ExtractedQuestion,
		Answer:   c.ExtractedAnswer,
		Category: c.ExtractedCategory,
		Source:   "similar_faq_review",
		SourceID: c.ID,
	}
	if err := e.store.ResolveSimilar(ctx, id, model.SimilarApproved, store.Resolution{Actor: actor, FAQ: faq}); err != nil {
		return nil, err
	}
	zap.L().Info("duplicate: approved as new faq",
		zap.String("similar_candidate_id", id),
		zap.String("faq_id", faq.ID),
		zap.String("actor", actor),
	)
	return faq, nil
}

// Dismiss closes the candidate without touching any FAQ.
func (e *Engine) Dismiss(ctx context.Context, id, reason, actor string) error {
	if err := e.store.ResolveSimilar(ctx, id, model.SimilarDismissed, store.Resolution{Actor: actor, Reason: reason}); err != nil {
		return err
	}
	zap.L().Info("duplicate: dismissed",
		zap.String("similar_candidate_id", id),
		zap.String("reason", reason),
		zap.String("actor", actor),
	)
	return nil
}

// Restore puts a dismissed candidate back in the queue. It is only allowed
// within the restore window of the dismissal.
func (e *Engine) Restore(ctx context.Context, id, actor string) error {
	c, err := e.store.GetSimilarCandidate(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != model.SimilarDismissed {
		return &apperr.ConflictError{Entity: "similar_faq_candidate", ID: id, Current: string(c.Status), Msg: "not dismissed"}
	}
	if c.ResolvedAt != nil && e.now().Sub(*c.ResolvedAt) > e.restoreWindow {
		return &apperr.ConflictError{Entity: "similar_faq_candidate", ID: id, Current: string(c.Status), Msg: "restore window expired"}
	}
	if err := e.store.RestoreSimilar(ctx, id, actor); err != nil {
		return err
	}
	zap.L().Info("duplicate: restored", zap.String("similar_candidate_id", id), zap.String("actor", actor))
	return nil
}

// History returns the audit events for a candidate, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]model.SimilarEvent, error) {
	if _, err := e.store.GetSimilarCandidate(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListSimilarEvents(ctx, id)
}
