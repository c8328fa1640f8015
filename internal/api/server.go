// Package api exposes the review engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/calibration"
	"github.com/bisq-support/review-engine/internal/duplicate"
	"github.com/bisq-support/review-engine/internal/metrics"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/resilience"
	"github.com/bisq-support/review-engine/internal/review"
)

// ReviewerHeader carries the acting reviewer's identity.
const ReviewerHeader = "X-Reviewer"

const anonymousReviewer = "anonymous"

// FAQStore reads knowledge-base entries and their history.
type FAQStore interface {
	GetFAQ(ctx context.Context, id string) (*model.FAQ, error)
	ListFAQRevisions(ctx context.Context, faqID string) ([]model.FAQRevision, error)
}

// Deps are the services behind the HTTP API. Breakers and Metrics may be nil.
type Deps struct {
	Reviews     *review.Service
	Similar     *duplicate.Engine
	Checker     *duplicate.Checker
	Calibration *calibration.Tracker
	FAQs        FAQStore
	Breakers    *resilience.ServiceBreakers
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

type server struct {
	Deps
}

// NewRouter builds the HTTP handler for the review API.
func NewRouter(d Deps) http.Handler {
	s := &server{Deps: d}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", ReviewerHeader},
		MaxAge:         300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/candidates", func(r chi.Router) {
		r.Post("/", s.createCandidate)
		r.Get("/", s.listCandidates)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getCandidate)
			r.Patch("/", s.updateCandidate)
			r.Post("/approve", s.approveCandidate)
			r.Post("/reject", s.rejectCandidate)
			r.Post("/skip", s.skipCandidate)
			r.Post("/rate", s.rateCandidate)
			r.Post("/regenerate", s.regenerateCandidate)
			r.Post("/scores", s.ingestScores)
		})
	})

	r.Get("/calibration/status", s.calibrationStatus)

	r.Route("/faqs", func(r chi.Router) {
		r.Post("/check-similar", s.checkSimilar)
		r.Get("/{id}", s.getFAQ)
		r.Get("/{id}/revisions", s.listFAQRevisions)
	})

	r.Route("/similar-faq-candidates", func(r chi.Router) {
		r.Post("/", s.submitSimilar)
		r.Get("/", s.listSimilar)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSimilar)
			r.Get("/events", s.similarEvents)
			r.Post("/approve", s.approveSimilar)
			r.Post("/merge", s.mergeSimilar)
			r.Post("/dismiss", s.dismissSimilar)
			r.Post("/restore", s.restoreSimilar)
		})
	})

	return r
}

// observe logs each request and records its latency by route pattern.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.Metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	breakers := map[string]string{}
	if s.Breakers != nil {
		breakers = s.Breakers.States()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "breakers": breakers})
}

func reviewer(r *http.Request) string {
	if v := r.Header.Get(ReviewerHeader); v != "" {
		return v
	}
	return anonymousReviewer
}
