package duplicate

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/config"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
	"github.com/bisq-support/review-engine/pkg/similarity"
)

// Searcher is the similarity service lookup.
type Searcher interface {
	Search(ctx context.Context, question string, limit int) ([]similarity.Match, error)
}

// Query is a near-duplicate check request.
type Query struct {
	Question  string  `json:"question"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
	ExcludeID string  `json:"exclude_id"`
}

// Result holds ranked matches. Degraded is set when the similarity service
// was unavailable and the empty result should not be trusted.
type Result struct {
	Matches  []model.SimilarFAQ `json:"matches"`
	Degraded bool               `json:"degraded"`
}

// Checker finds existing FAQs similar to a question.
type Checker struct {
	search         Searcher
	tiers          *scoring.TierClassifier
	blockThreshold float64
	defaultLimit   int
	maxLimit       int
}

// NewChecker creates a Checker. Zero limits and threshold fall back to 5, 20 and 0.85.
func NewChecker(search Searcher, tiers *scoring.TierClassifier, cfg config.DuplicateConfig) *Checker {
	if tiers == nil {
		tiers = scoring.DefaultTierClassifier()
	}
	c := &Checker{
		search:         search,
		tiers:          tiers,
		blockThreshold: cfg.BlockThreshold,
		defaultLimit:   cfg.DefaultLimit,
		maxLimit:       cfg.MaxLimit,
	}
	if c.blockThreshold <= 0 {
		c.blockThreshold = 0.85
	}
	if c.defaultLimit <= 0 {
		c.defaultLimit = 5
	}
	if c.maxLimit <= 0 {
		c.maxLimit = 20
	}
	return c
}

// NormalizeQuestion folds Unicode compatibility forms and collapses whitespace.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(q)), " ")
}

// CheckSimilar returns FAQs at or above max(Threshold, lowest surfaced tier),
// most similar first. An unavailable similarity service yields an empty,
// degraded result rather than an error.
func (c *Checker) CheckSimilar(ctx context.Context, q Query) (*Result, error) {
	question := NormalizeQuestion(q.Question)
	if question == "" {
		return nil, apperr.Validation("question", "required")
	}
	if math.IsNaN(q.Threshold) || q.Threshold < 0 || q.Threshold > 1 {
		return nil, apperr.Validation("threshold", "must be within [0,1]")
	}
	if q.Limit < 0 {
		return nil, apperr.Validation("limit", "must not be negative")
	}
	limit := q.Limit
	if limit == 0 {
		limit = c.defaultLimit
	}
	limit = min(limit, c.maxLimit)

	fetch := limit
	if q.ExcludeID != "" {
		fetch++
	}
	found, err := c.search.Search(ctx, question, fetch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("duplicate: similarity service unavailable, returning no matches",
			zap.Error(err),
		)
		return &Result{Matches: []model.SimilarFAQ{}, Degraded: true}, nil
	}

	floor := math.Max(q.Threshold, c.tiers.MinSurfaced())
	matches := make([]model.SimilarFAQ, 0, len(found))
	for _, m := range found {
		if m.FAQID == q.ExcludeID && q.ExcludeID != "" {
			continue
		}
		if m.Similarity < floor {
			continue
		}
		tier := c.tiers.Classify(m.Similarity)
		matches = append(matches, model.SimilarFAQ{
			FAQID:      m.FAQID,
			Question:   m.Question,
			Answer:     m.Answer,
			Category:   m.Category,
			Similarity: m.Similarity,
			Tier:       string(tier),
			Action:     tier.EditorWarning(),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return &Result{Matches: matches}, nil
}

// Blocking returns matches at or above the block threshold for question.
// Check failures are logged and treated as no duplicate.
func (c *Checker) Blocking(ctx context.Context, question, excludeID string) []model.SimilarFAQ {
	res, err := c.CheckSimilar(ctx, Query{
		Question:  question,
		Threshold: c.blockThreshold,
		Limit:     c.maxLimit,
		ExcludeID: excludeID,
	})
	if err != nil {
		zap.L().Warn("duplicate: blocking check failed, treating as no duplicate", zap.Error(err))
		return nil
	}
	return res.Matches
}
