package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/review"
	"github.com/bisq-support/review-engine/internal/store"
)

func (s *server) createCandidate(w http.ResponseWriter, r *http.Request) {
	var nc review.NewCandidate
	if err := decode(r, &nc); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.Reviews.Intake(r.Context(), nc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *server) listCandidates(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	out, err := s.Reviews.ListQueue(r.Context(), store.CandidateFilter{
		Routing: model.Routing(q.Get("routing")),
		Status:  model.ReviewStatus(q.Get("status")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getCandidate(w http.ResponseWriter, r *http.Request) {
	v, err := s.Reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) updateCandidate(w http.ResponseWriter, r *http.Request) {
	var edit model.CandidateEdit
	if err := decode(r, &edit); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.Reviews.Update(r.Context(), chi.URLParam(r, "id"), edit, reviewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) approveCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	faq, err := s.Reviews.Approve(r.Context(), chi.URLParam(r, "id"), review.ApproveOptions{
		Force: req.Force,
		Actor: reviewer(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"faq_id": faq.ID})
}

func (s *server) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason model.RejectionReason `json:"reason"`
		Note   string                `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Reviews.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Note, reviewer(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *server) skipCandidate(w http.ResponseWriter, r *http.Request) {
	if err := s.Reviews.Skip(r.Context(), chi.URLParam(r, "id"), reviewer(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *server) rateCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating model.Rating `json:"rating"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.Reviews.Rate(r.Context(), chi.URLParam(r, "id"), req.Rating, reviewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) regenerateCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Protocol model.Protocol `json:"protocol"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.Reviews.Regenerate(r.Context(), chi.URLParam(r, "id"), req.Protocol, reviewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) ingestScores(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnswerVersion        int           `json:"answer_version"`
		Metrics              model.Metrics `json:"metrics"`
		GenerationConfidence *float64      `json:"generation_confidence"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.Reviews.IngestScores(r.Context(), chi.URLParam(r, "id"), req.AnswerVersion, req.Metrics, req.GenerationConfidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) calibrationStatus(w http.ResponseWriter, r *http.Request) {
	if s.Calibration == nil {
		writeError(w, apperr.NotFound("calibration", "1"))
		return
	}
	st, err := s.Calibration.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
