package scoring

import (
	"github.com/rotisserie/eris"

	"github.com/bisq-support/review-engine/internal/config"
)

// Tier is a near-duplicate severity band.
type Tier string

// Tiers, most to least severe. TierNone is never surfaced.
const (
	TierLikelyDuplicate Tier = "likely_duplicate"
	TierVerySimilar     Tier = "very_similar"
	TierSimilar         Tier = "similar"
	TierRelated         Tier = "related"
	TierNone            Tier = ""
)

// Severity ranks tiers; higher is more severe.
func (t Tier) Severity() int {
	switch t {
	case TierLikelyDuplicate:
		return 4
	case TierVerySimilar:
		return 3
	case TierSimilar:
		return 2
	case TierRelated:
		return 1
	default:
		return 0
	}
}

// Surfaced reports whether a match in this tier should be shown at all.
func (t Tier) Surfaced() bool {
	return t != TierNone
}

// ReviewAction is the recommended resolution for a similar-FAQ candidate in this tier.
func (t Tier) ReviewAction() string {
	switch t {
	case TierLikelyDuplicate:
		return "dismiss"
	case TierVerySimilar, TierSimilar:
		return "merge"
	case TierRelated:
		return "approve"
	default:
		return ""
	}
}

// EditorWarning is the label shown to an editor typing a new FAQ question.
func (t Tier) EditorWarning() string {
	switch t {
	case TierLikelyDuplicate:
		return "possible duplicate"
	case TierVerySimilar:
		return "very similar FAQ exists"
	case TierSimilar:
		return "similar FAQ exists"
	case TierRelated:
		return "related FAQ"
	default:
		return ""
	}
}

// TierClassifier maps a similarity in [0,1] to a tier.
type TierClassifier struct {
	bounds []tierBound
}

type tierBound struct {
	min  float64
	tier Tier
}

// NewTierClassifier creates a classifier from tier config. Bounds must be strictly increasing
// from related to likely_duplicate.
func NewTierClassifier(cfg config.SimilarityConfig) (*TierClassifier, error) {
	if !(cfg.Related > 0 && cfg.Related < cfg.Similar && cfg.Similar < cfg.VerySimilar &&
		cfg.VerySimilar < cfg.LikelyDuplicate && cfg.LikelyDuplicate <= 1) {
		return nil, eris.New("scoring: similarity tier bounds must be strictly increasing within (0,1]")
	}
	return &TierClassifier{bounds: []tierBound{
		{cfg.LikelyDuplicate, TierLikelyDuplicate},
		{cfg.VerySimilar, TierVerySimilar},
		{cfg.Similar, TierSimilar},
		{cfg.Related, TierRelated},
	}}, nil
}

// DefaultTierClassifier returns the 0.95/0.85/0.75/0.65 classifier.
func DefaultTierClassifier() *TierClassifier {
	tc, _ := NewTierClassifier(config.SimilarityConfig{
		LikelyDuplicate: 0.95,
		VerySimilar:     0.85,
		Similar:         0.75,
		Related:         0.65,
	})
	return tc
}

// Classify returns the tier for similarity, or TierNone below the lowest bound.
func (tc *TierClassifier) Classify(similarity float64) Tier {
	for _, b := range tc.bounds {
		if similarity >= b.min {
			return b.tier
		}
	}
	return TierNone
}

// MinSurfaced returns the lowest similarity that is surfaced.
func (tc *TierClassifier) MinSurfaced() float64 {
	return tc.bounds[len(tc.bounds)-1].min
}
