// Package calibration tracks the human-rated sample set collected for the
// AUTO_APPROVE queue before unattended sending is trusted.
package calibration

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
)

// Store is the persistence the tracker needs. The sample increment itself
// happens inside the store's rating transaction.
type Store interface {
	EnsureCalibration(ctx context.Context, samplesRequired int) error
	GetCalibration(ctx context.Context) (*model.CalibrationStatus, error)
}

// Tracker exposes calibration state and the decisions gated on it.
type Tracker struct {
	store    Store
	router   *scoring.Router
	required int
}

// NewTracker creates a Tracker. samplesRequired must be positive.
func NewTracker(st Store, router *scoring.Router, samplesRequired int) (*Tracker, error) {
	if samplesRequired <= 0 {
		return nil, eris.Errorf("calibration: samples_required must be > 0, got %d", samplesRequired)
	}
	if router == nil {
		router = scoring.DefaultRouter()
	}
	return &Tracker{store: st, router: router, required: samplesRequired}, nil
}

// Init creates the calibration row if it does not exist yet. An existing row
// keeps its counters and required sample count.
func (t *Tracker) Init(ctx context.Context) error {
	if err := t.store.EnsureCalibration(ctx, t.required); err != nil {
		return eris.Wrap(err, "calibration: init")
	}
	return nil
}

// Status returns the current calibration state with the active thresholds.
func (t *Tracker) Status(ctx context.Context) (*model.CalibrationStatus, error) {
	st, err := t.store.GetCalibration(ctx)
	if err != nil {
		return nil, err
	}
	st.AutoApproveThreshold, st.SpotCheckThreshold = t.router.Thresholds()
	st.IsComplete = st.SamplesCollected >= st.SamplesRequired
	return st, nil
}

// Eligible reports whether a rating on a candidate in routing can count as a sample.
// The store additionally stops counting once the required total is reached.
func (t *Tracker) Eligible(routing model.Routing) bool {
	return t.router.IsCalibrationEligible(routing)
}

// RequiresHumanRating reports whether c must be rated before it counts as resolved.
// Every AUTO_APPROVE candidate needs a rating while calibration is collecting.
func (t *Tracker) RequiresHumanRating(ctx context.Context, c *model.Candidate) (bool, error) {
	if c.Routing != model.RoutingAutoApprove {
		return false, nil
	}
	st, err := t.Status(ctx)
	if err != nil {
		return false, err
	}
	return !st.IsComplete, nil
}

// CanAutoSend reports whether c may be sent without a reviewer. Only a complete
// calibration makes the auto-approve threshold authoritative.
func (t *Tracker) CanAutoSend(ctx context.Context, c *model.Candidate) (bool, error) {
	if c.FinalScore == nil || !c.HasGeneratedAnswer() {
		return false, nil
	}
	st, err := t.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.IsComplete && *c.FinalScore >= st.AutoApproveThreshold, nil
}

// Observe logs a rating outcome and returns the refreshed status.
func (t *Tracker) Observe(ctx context.Context, candidateID string, counted bool) (*model.CalibrationStatus, error) {
	st, err := t.Status(ctx)
	if err != nil {
		return nil, err
	}
	if counted {
		zap.L().Info("calibration: sample recorded",
			zap.String("candidate_id", candidateID),
			zap.Int("samples_collected", st.SamplesCollected),
			zap.Int("samples_required", st.SamplesRequired),
		)
		if st.IsComplete {
			zap.L().Info("calibration: complete", zap.Int("samples", st.SamplesCollected))
		}
	}
	return st, nil
}
