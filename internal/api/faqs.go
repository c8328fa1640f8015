package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bisq-support/review-engine/internal/duplicate"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/store"
)

func (s *server) checkSimilar(w http.ResponseWriter, r *http.Request) {
	var q duplicate.Query
	if err := decode(r, &q); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Checker.CheckSimilar(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Degraded {
		s.Metrics.Degraded("similarity")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) getFAQ(w http.ResponseWriter, r *http.Request) {
	f, err := s.FAQs.GetFAQ(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *server) listFAQRevisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.FAQs.GetFAQ(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	revs, err := s.FAQs.ListFAQRevisions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if revs == nil {
		revs = []model.FAQRevision{}
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *server) submitSimilar(w http.ResponseWriter, r *http.Request) {
	var c model.SimilarFaqCandidate
	if err := decode(r, &c); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Similar.Submit(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.Similar.Get(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *server) listSimilar(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := s.Similar.List(r.Context(), store.SimilarFilter{
		Status: model.SimilarStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) getSimilar(w http.ResponseWriter, r *http.Request) {
	item, err := s.Similar.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) similarEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Similar.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.SimilarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) approveSimilar(w http.ResponseWriter, r *http.Request) {
	faq, err := s.Similar.Approve(r.Context(), chi.URLParam(r, "id"), reviewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.Metrics.Resolved(string(model.SimilarApproved))
	writeJSON(w, http.StatusOK, map[string]string{"faq_id": faq.ID})
}

func (s *server) mergeSimilar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode model.MergeMode `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	faq, err := s.Similar.Merge(r.Context(), chi.URLParam(r, "id"), req.Mode, reviewer(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.Metrics.Resolved(string(model.SimilarMerged))
	writeJSON(w, http.StatusOK, faq)
}

func (s *server) dismissSimilar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Similar.Dismiss(r.Context(), chi.URLParam(r, "id"), req.Reason, reviewer(r)); err != nil {
		writeError(w, err)
		return
	}
	s.Metrics.Resolved(string(model.SimilarDismissed))
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *server) restoreSimilar(w http.ResponseWriter, r *http.Request) {
	if err := s.Similar.Restore(r.Context(), chi.URLParam(r, "id"), reviewer(r)); err != nil {
		writeError(w, err)
		return
	}
	s.Metrics.Resolved(string(model.SimilarPending))
	writeJSON(w, http.StatusOK, struct{}{})
}
