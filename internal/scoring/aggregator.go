// Package scoring turns raw comparison metrics into a final score, a review
// queue, and near-duplicate severity tiers.
package scoring

import (
	"math"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

// MetricName identifies one of the five raw comparison metrics.
type MetricName string

// Metric names.
const (
	MetricEmbeddingSimilarity MetricName = "embedding_similarity"
	MetricFactualAlignment    MetricName = "factual_alignment"
	MetricContradictionScore  MetricName = "contradiction_score"
	MetricCompleteness        MetricName = "completeness"
	MetricHallucinationRisk   MetricName = "hallucination_risk"
)

// MetricSpec is one row of the weight table. Inverted metrics are risk scores
// where lower is better.
type MetricSpec struct {
	Name     MetricName `json:"name"`
	Weight   float64    `json:"weight"`
	Inverted bool       `json:"inverted"`
}

// totalWeight is the sum of MetricTable weights.
const totalWeight = 100.0

// MetricTable is the fixed weight table used for scoring and for the breakdown
// shown to reviewers. Weights sum to 100.
var MetricTable = []MetricSpec{
	{Name: MetricEmbeddingSimilarity, Weight: 15},
	{Name: MetricFactualAlignment, Weight: 30},
	{Name: MetricContradictionScore, Weight: 25, Inverted: true},
	{Name: MetricCompleteness, Weight: 10},
	{Name: MetricHallucinationRisk, Weight: 20, Inverted: true},
}

// value returns the raw metric for name.
func value(m model.Metrics, name MetricName) *float64 {
	switch name {
	case MetricEmbeddingSimilarity:
		return m.EmbeddingSimilarity
	case MetricFactualAlignment:
		return m.FactualAlignment
	case MetricContradictionScore:
		return m.ContradictionScore
	case MetricCompleteness:
		return m.Completeness
	case MetricHallucinationRisk:
		return m.HallucinationRisk
	default:
		return nil
	}
}

// Contribution is one metric's share of the final score.
type Contribution struct {
	MetricSpec
	Raw          *float64 `json:"raw"`
	Contribution *float64 `json:"contribution"`
}

// Aggregate returns the weighted final score in [0,1], or nil if any metric is
// missing. Generation confidence is not part of the aggregate.
func Aggregate(m model.Metrics) *float64 {
	var sum float64
	for _, spec := range MetricTable {
		raw := value(m, spec.Name)
		if raw == nil {
			return nil
		}
		sum += contribution(spec, *raw)
	}
	score := clamp(sum / totalWeight)
	return &score
}

// Breakdown returns the per-metric contributions in table order. Missing
// metrics have a nil contribution.
func Breakdown(m model.Metrics) []Contribution {
	out := make([]Contribution, 0, len(MetricTable))
	for _, spec := range MetricTable {
		c := Contribution{MetricSpec: spec, Raw: value(m, spec.Name)}
		if c.Raw != nil {
			v := contribution(spec, *c.Raw) / totalWeight
			c.Contribution = &v
		}
		out = append(out, c)
	}
	return out
}

// ValidateMetrics rejects metrics outside [0,1] or NaN. Missing metrics are allowed.
func ValidateMetrics(m model.Metrics) error {
	for _, spec := range MetricTable {
		raw := value(m, spec.Name)
		if raw == nil {
			continue
		}
		if math.IsNaN(*raw) || *raw < 0 || *raw > 1 {
			return apperr.Validation(string(spec.Name), "must be within [0,1]")
		}
	}
	return nil
}

func contribution(spec MetricSpec, raw float64) float64 {
	if spec.Inverted {
		return (1 - raw) * spec.Weight
	}
	return raw * spec.Weight
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
