package model

import "time"

// Protocol identifies the trade protocol an answer is generated for.
type Protocol string

// Protocol values.
const (
	ProtocolNone       Protocol = ""
	ProtocolBisqEasy   Protocol = "bisq_easy"
	ProtocolMultisigV1 Protocol = "multisig_v1"
	ProtocolMuSig      Protocol = "musig"
	ProtocolAll        Protocol = "all"
)

// Valid reports whether p is a selectable protocol. The empty protocol is not selectable.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolBisqEasy, ProtocolMultisigV1, ProtocolMuSig, ProtocolAll:
		return true
	default:
		return false
	}
}

// Routing is the review queue a candidate is placed in.
type Routing string

// Routing values, least to most trusted.
const (
	RoutingFullReview  Routing = "FULL_REVIEW"
	RoutingSpotCheck   Routing = "SPOT_CHECK"
	RoutingAutoApprove Routing = "AUTO_APPROVE"
)

// Valid reports whether r is a known routing.
func (r Routing) Valid() bool {
	switch r {
	case RoutingFullReview, RoutingSpotCheck, RoutingAutoApprove:
		return true
	default:
		return false
	}
}

// ReviewStatus is the lifecycle state of a candidate.
type ReviewStatus string

// ReviewStatus values. Skipped is never persisted: a skipped candidate stays pending.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewSkipped  ReviewStatus = "skipped"
)

// Terminal reports whether the status ends review for the current answer version.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// RejectionReason is the closed classification for rejected candidates.
type RejectionReason string

// RejectionReason values.
const (
	RejectIncorrect RejectionReason = "incorrect"
	RejectOutdated  RejectionReason = "outdated"
	RejectTooVague  RejectionReason = "too_vague"
	RejectOffTopic  RejectionReason = "off_topic"
	RejectDuplicate RejectionReason = "duplicate"
	RejectOther     RejectionReason = "other"
)

// RejectionReasons lists every accepted reason in reporting order.
var RejectionReasons = []RejectionReason{
	RejectIncorrect, RejectOutdated, RejectTooVague, RejectOffTopic, RejectDuplicate, RejectOther,
}

// Valid reports whether r belongs to the closed reason set.
func (r RejectionReason) Valid() bool {
	for _, v := range RejectionReasons {
		if r == v {
			return true
		}
	}
	return false
}

// Rating is a reviewer's judgment of a generated answer.
type Rating string

// Rating values.
const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
)

// Valid reports whether r is a known rating.
func (r Rating) Valid() bool {
	return r == RatingGood || r == RatingNeedsImprovement
}

// Metrics holds the five raw comparison metrics produced by the external scorer.
// Each value is in [0,1]; nil means the scorer did not produce it.
type Metrics struct {
	EmbeddingSimilarity *float64 `json:"embedding_similarity"`
	FactualAlignment    *float64 `json:"factual_alignment"`
	ContradictionScore  *float64 `json:"contradiction_score"`
	Completeness        *float64 `json:"completeness"`
	HallucinationRisk   *float64 `json:"hallucination_risk"`
}

// Empty reports whether no metric is set.
func (m Metrics) Empty() bool {
	return m.EmbeddingSimilarity == nil && m.FactualAlignment == nil &&
		m.ContradictionScore == nil && m.Completeness == nil && m.HallucinationRisk == nil
}

// Candidate is one staff-answer/generated-answer comparison awaiting review.
type Candidate struct {
	ID                   string          `json:"id"`
	QuestionText         string          `json:"question_text"`
	StaffAnswer          string          `json:"staff_answer"`
	GeneratedAnswer      *string         `json:"generated_answer"`
	Protocol             Protocol        `json:"protocol"`
	Metrics              Metrics         `json:"metrics"`
	GenerationConfidence *float64        `json:"generation_confidence"`
	FinalScore           *float64        `json:"final_score"`
	Routing              Routing         `json:"routing"`
	ReviewStatus         ReviewStatus    `json:"review_status"`
	RejectionReason      RejectionReason `json:"rejection_reason,omitempty"`
	RejectionNote        string          `json:"rejection_note,omitempty"`
	IsCalibrationSample  bool            `json:"is_calibration_sample"`
	EditedStaffAnswer    *string         `json:"edited_staff_answer"`
	EditedQuestionText   *string         `json:"edited_question_text"`
	Category             string          `json:"category"`
	Source               string          `json:"source,omitempty"`
	AnswerVersion        int             `json:"answer_version"`
	Rating               *Rating         `json:"rating"`
	SkipCount            int             `json:"skip_count"`
	LastSkippedAt        *time.Time      `json:"last_skipped_at,omitempty"`
	FAQID                *string         `json:"faq_id,omitempty"`
	ReviewedBy           string          `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// EffectiveQuestion returns the edited question if present, otherwise the original.
func (c *Candidate) EffectiveQuestion() string {
	if c.EditedQuestionText != nil {
		return *c.EditedQuestionText
	}
	return c.QuestionText
}

// EffectiveAnswer returns the edited staff answer if present, otherwise the original.
func (c *Candidate) EffectiveAnswer() string {
	if c.EditedStaffAnswer != nil {
		return *c.EditedStaffAnswer
	}
	return c.StaffAnswer
}

// HasGeneratedAnswer reports whether a protocol is selected and an answer exists for it.
func (c *Candidate) HasGeneratedAnswer() bool {
	return c.Protocol != ProtocolNone && c.GeneratedAnswer != nil
}

// CandidateEdit carries reviewer edits. Nil fields are left unchanged.
type CandidateEdit struct {
	QuestionText *string `json:"edited_question_text,omitempty"`
	StaffAnswer  *string `json:"edited_staff_answer,omitempty"`
	Category     *string `json:"category,omitempty"`
}

// ScoreUpdate is a complete scoring result written atomically with its derived fields.
type ScoreUpdate struct {
	Metrics              Metrics  `json:"metrics"`
	GenerationConfidence *float64 `json:"generation_confidence,omitempty"`
	FinalScore           *float64 `json:"final_score"`
	Routing              Routing  `json:"routing"`
}

// AnswerUpdate replaces the generated answer for a new protocol.
// Scores is nil when the generator returned no metrics; the stored metrics and
// final score are then cleared while routing is kept.
type AnswerUpdate struct {
	Protocol        Protocol     `json:"protocol"`
	GeneratedAnswer string       `json:"generated_answer"`
	Scores          *ScoreUpdate `json:"scores,omitempty"`
}
