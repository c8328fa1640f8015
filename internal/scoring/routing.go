package scoring

import (
	"github.com/rotisserie/eris"

	"github.com/bisq-support/review-engine/internal/config"
	"github.com/bisq-support/review-engine/internal/model"
)

// Router maps a final score to a review queue. Both cutoffs are inclusive
// lower bounds of the upper queue.
type Router struct {
	autoApprove float64
	spotCheck   float64
}

// NewRouter creates a Router from routing config.
func NewRouter(cfg config.RoutingConfig) (*Router, error) {
	if cfg.SpotCheckThreshold < 0 || cfg.AutoApproveThreshold > 1 || cfg.SpotCheckThreshold >= cfg.AutoApproveThreshold {
		return nil, eris.Errorf("scoring: invalid routing thresholds auto=%.4f spot=%.4f",
			cfg.AutoApproveThreshold, cfg.SpotCheckThreshold)
	}
	return &Router{autoApprove: cfg.AutoApproveThreshold, spotCheck: cfg.SpotCheckThreshold}, nil
}

// DefaultRouter returns a Router with the 0.90/0.75 cutoffs.
func DefaultRouter() *Router {
	return &Router{autoApprove: 0.90, spotCheck: 0.75}
}

// Route returns the queue for score. A nil score fails safe to FULL_REVIEW.
func (r *Router) Route(score *float64) model.Routing {
	if score == nil {
		return model.RoutingFullReview
	}
	switch {
	case *score >= r.autoApprove:
		return model.RoutingAutoApprove
	case *score >= r.spotCheck:
		return model.RoutingSpotCheck
	default:
		return model.RoutingFullReview
	}
}

// Score aggregates m and routes the result.
func (r *Router) Score(m model.Metrics, confidence *float64) model.ScoreUpdate {
	final := Aggregate(m)
	return model.ScoreUpdate{
		Metrics:              m,
		GenerationConfidence: confidence,
		FinalScore:           final,
		Routing:              r.Route(final),
	}
}

// IsCalibrationEligible reports whether ratings in this queue count as calibration samples.
func (r *Router) IsCalibrationEligible(routing model.Routing) bool {
	return routing == model.RoutingAutoApprove
}

// Thresholds returns the auto-approve and spot-check cutoffs.
func (r *Router) Thresholds() (autoApprove, spotCheck float64) {
	return r.autoApprove, r.spotCheck
}
