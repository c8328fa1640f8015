package model

import "time"

// CalibrationStatus is the process-wide calibration counter.
type CalibrationStatus struct {
	SamplesCollected      int        `json:"samples_collected"`
	SamplesRequired       int        `json:"samples_required"`
	IsComplete            bool       `json:"is_complete"`
	AutoApproveThreshold  float64    `json:"auto_approve_threshold"`
	SpotCheckThreshold    float64    `json:"spot_check_threshold"`
	GoodCount             int        `json:"good_count"`
	NeedsImprovementCount int        `json:"needs_improvement_count"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// SimilarStatus is the lifecycle state of a near-duplicate match.
type SimilarStatus string

// SimilarStatus values.
const (
	SimilarPending   SimilarStatus = "pending"
	SimilarApproved  SimilarStatus = "approved"
	SimilarMerged    SimilarStatus = "merged"
	SimilarDismissed SimilarStatus = "dismissed"
)

// MergeMode selects how extracted content is reconciled with an existing FAQ.
type MergeMode string

// MergeMode values.
const (
	MergeReplace MergeMode = "replace"
	MergeAppend  MergeMode = "append"
)

// Valid reports whether m is a known merge mode.
func (m MergeMode) Valid() bool {
	return m == MergeReplace || m == MergeAppend
}

// SimilarFaqCandidate is a near-duplicate match between an extracted answer and an existing FAQ.
type SimilarFaqCandidate struct {
	ID                string        `json:"id"`
	ExtractedQuestion string        `json:"extracted_question"`
	ExtractedAnswer   string        `json:"extracted_answer"`
	ExtractedCategory string        `json:"extracted_category"`
	MatchedFAQID      string        `json:"matched_faq_id"`
	MatchedQuestion   string        `json:"matched_question"`
	MatchedAnswer     string        `json:"matched_answer"`
	Similarity        float64       `json:"similarity"`
	Tier              string        `json:"tier"`
	Status            SimilarStatus `json:"status"`
	MergeMode         MergeMode     `json:"merge_mode,omitempty"`
	ResultFAQID       string        `json:"result_faq_id,omitempty"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy        string        `json:"resolved_by,omitempty"`
	DismissReason     string        `json:"dismiss_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// SimilarEvent is an audit entry for a similar-FAQ candidate resolution or restore.
type SimilarEvent struct {
	ID          string        `json:"id"`
	CandidateID string        `json:"candidate_id"`
	Status      SimilarStatus `json:"status"`
	Actor       string        `json:"actor"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// FAQ is an entry in the knowledge base.
type FAQ struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category"`
	Protocol  Protocol  `json:"protocol,omitempty"`
	Source    string    `json:"source,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RevisionAction labels an FAQ audit entry.
type RevisionAction string

// RevisionAction values.
const (
	RevisionCreate  RevisionAction = "create"
	RevisionReplace RevisionAction = "replace"
	RevisionAppend  RevisionAction = "append"
)

// FAQRevision records FAQ content before a change so prior text stays retrievable.
type FAQRevision struct {
	ID        string         `json:"id"`
	FAQID     string         `json:"faq_id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Action    RevisionAction `json:"action"`
	Actor     string         `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}

// SimilarFAQ is one ranked near-duplicate match returned by a similarity check.
type SimilarFAQ struct {
	FAQID      string  `json:"faq_id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer,omitempty"`
	Category   string  `json:"category,omitempty"`
	Similarity float64 `json:"similarity"`
	Tier       string  `json:"tier"`
	Action     string  `json:"action,omitempty"`
}
