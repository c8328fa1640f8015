package review

import (
	"math"
	"strings"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
	"github.com/bisq-support/review-engine/internal/store"
	"github.com/bisq-support/review-engine/pkg/generator"
)

// NewCandidate is a staff-answer/generated-answer pair submitted for review.
type NewCandidate struct {
	ID                   string         `json:"id,omitempty"`
	QuestionText         string         `json:"question_text"`
	StaffAnswer          string         `json:"staff_answer"`
	GeneratedAnswer      *string        `json:"generated_answer,omitempty"`
	Protocol             model.Protocol `json:"protocol,omitempty"`
	Metrics              model.Metrics  `json:"metrics"`
	GenerationConfidence *float64       `json:"generation_confidence,omitempty"`
	Category             string         `json:"category,omitempty"`
	Source               string         `json:"source,omitempty"`
}

// ApproveOptions control an approval.
type ApproveOptions struct {
	// Force approves despite near-duplicate matches.
	Force bool
	Actor string
}

// View is a candidate as shown to a reviewer.
type View struct {
	model.Candidate
	ScoreBreakdown []scoring.Contribution `json:"score_breakdown"`
	RequiresRating bool                   `json:"requires_rating"`
	AutoSendable   bool                   `json:"auto_sendable"`
}

func validateNewCandidate(nc NewCandidate) error {
	if strings.TrimSpace(nc.QuestionText) == "" {
		return apperr.Validation("question_text", "required")
	}
	if strings.TrimSpace(nc.StaffAnswer) == "" {
		return apperr.Validation("staff_answer", "required")
	}
	if nc.Protocol != model.ProtocolNone && !nc.Protocol.Valid() {
		return apperr.Validation("protocol", "unknown protocol "+string(nc.Protocol))
	}
	if nc.GeneratedAnswer != nil && nc.Protocol == model.ProtocolNone {
		return apperr.Validation("protocol", "required with a generated answer")
	}
	if err := validateConfidence(nc.GenerationConfidence); err != nil {
		return err
	}
	return scoring.ValidateMetrics(nc.Metrics)
}

func validateConfidence(c *float64) error {
	if c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		return apperr.Validation("generation_confidence", "must be within [0,1]")
	}
	return nil
}

// validateRejection enforces the closed reason set. A note is only kept for "other".
func validateRejection(reason model.RejectionReason, note string) (string, error) {
	if reason == "" {
		return "", apperr.Validation("reason", "required")
	}
	if !reason.Valid() {
		return "", apperr.Validation("reason", "unknown rejection reason "+string(reason))
	}
	note = strings.TrimSpace(note)
	if note != "" && reason != model.RejectOther {
		return "", apperr.Validation("note", "only allowed with reason other")
	}
	return note, nil
}

func validateEdit(edit model.CandidateEdit) error {
	if edit.QuestionText == nil && edit.StaffAnswer == nil && edit.Category == nil {
		return apperr.Validation("edit", "nothing to update")
	}
	if edit.QuestionText != nil && strings.TrimSpace(*edit.QuestionText) == "" {
		return apperr.Validation("edited_question_text", "must not be empty")
	}
	if edit.StaffAnswer != nil && strings.TrimSpace(*edit.StaffAnswer) == "" {
		return apperr.Validation("edited_staff_answer", "must not be empty")
	}
	return nil
}

func validateQueueFilter(f store.CandidateFilter) error {
	if f.Routing != "" && !f.Routing.Valid() {
		return apperr.Validation("routing", "unknown routing "+string(f.Routing))
	}
	switch f.Status {
	case "", model.ReviewPending, model.ReviewApproved, model.ReviewRejected:
	case model.ReviewSkipped:
		return apperr.Validation("status", "skipped candidates stay pending")
	default:
		return apperr.Validation("status", "unknown status "+string(f.Status))
	}
	if f.Limit < 0 || f.Offset < 0 {
		return apperr.Validation("limit", "must not be negative")
	}
	return nil
}

// requirePending fails fast before calling upstream services for a closed candidate.
// The store's guarded update remains the authority.
func requirePending(c *model.Candidate) error {
	if c.ReviewStatus != model.ReviewPending {
		return apperr.Conflict("candidate", c.ID, string(c.ReviewStatus))
	}
	return nil
}

func candidateRecord(nc NewCandidate, up model.ScoreUpdate) *model.Candidate {
	return &model.Candidate{
		ID:                   nc.ID,
		QuestionText:         strings.TrimSpace(nc.QuestionText),
		StaffAnswer:          strings.TrimSpace(nc.StaffAnswer),
		GeneratedAnswer:      nc.GeneratedAnswer,
		Protocol:             nc.Protocol,
		Metrics:              up.Metrics,
		GenerationConfidence: up.GenerationConfidence,
		FinalScore:           up.FinalScore,
		Routing:              up.Routing,
		Category:             nc.Category,
		Source:               nc.Source,
	}
}

// approvedFAQ is the knowledge-base entry an approval creates.
func approvedFAQ(c *model.Candidate) *model.FAQ {
	return &model.FAQ{
		Question: strings.TrimSpace(c.EffectiveQuestion()),
		Answer:   strings.TrimSpace(c.EffectiveAnswer()),
		Category: c.Category,
		Protocol: c.Protocol,
		Source:   "candidate_review",
		SourceID: c.ID,
	}
}

func fromGeneratorMetrics(m generator.Metrics) model.Metrics {
	return model.Metrics{
		EmbeddingSimilarity: m.EmbeddingSimilarity,
		FactualAlignment:    m.FactualAlignment,
		ContradictionScore:  m.ContradictionScore,
		Completeness:        m.Completeness,
		HallucinationRisk:   m.HallucinationRisk,
	}
}
