// Package review drives the candidate review lifecycle: intake, scoring,
// reviewer decisions, and calibration ratings.
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/metrics"
	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/scoring"
	"github.com/bisq-support/review-engine/internal/store"
	"github.com/bisq-support/review-engine/pkg/generator"
)

// Store is the candidate persistence the service needs.
type Store interface {
	CreateCandidate(ctx context.Context, c *model.Candidate) error
	BulkCreateCandidates(ctx context.Context, cs []model.Candidate) (int64, error)
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	ListCandidates(ctx context.Context, filter store.CandidateFilter) ([]model.Candidate, error)
	EditCandidate(ctx context.Context, id string, edit model.CandidateEdit) error
	SetScores(ctx context.Context, id string, answerVersion int, up model.ScoreUpdate) error
	ReplaceAnswer(ctx context.Context, id string, answerVersion int, up model.AnswerUpdate) error
	ApproveCandidate(ctx context.Context, id, actor string, faq *model.FAQ) error
	RejectCandidate(ctx context.Context, id, actor string, reason model.RejectionReason, note string) error
	SkipCandidate(ctx context.Context, id, actor string) error
	RateCandidate(ctx context.Context, in store.RatingInput, eligible func(model.Routing) bool) (bool, error)
}

// Calibration is the calibration state the service consults.
type Calibration interface {
	Eligible(routing model.Routing) bool
	RequiresHumanRating(ctx context.Context, c *model.Candidate) (bool, error)
	CanAutoSend(ctx context.Context, c *model.Candidate) (bool, error)
	Observe(ctx context.Context, candidateID string, counted bool) (*model.CalibrationStatus, error)
}

// DuplicateChecker finds existing FAQs that block an approval.
type DuplicateChecker interface {
	Blocking(ctx context.Context, question, excludeID string) []model.SimilarFAQ
}

// Deps are the collaborators of a Service. Generator, Duplicates and Metrics may be nil.
type Deps struct {
	Store       Store
	Calibration Calibration
	Router      *scoring.Router
	Duplicates  DuplicateChecker
	Generator   generator.Client
	Metrics     *metrics.Metrics
}

// Service applies review operations to candidates.
type Service struct {
	store      Store
	calib      Calibration
	router     *scoring.Router
	duplicates DuplicateChecker
	gen        generator.Client
	metrics    *metrics.Metrics
}

// NewService creates a Service.
func NewService(d Deps) (*Service, error) {
	if d.Store == nil || d.Calibration == nil {
		return nil, eris.New("review: store and calibration are required")
	}
	if d.Router == nil {
		d.Router = scoring.DefaultRouter()
	}
	return &Service{
		store:      d.Store,
		calib:      d.Calibration,
		router:     d.Router,
		duplicates: d.Duplicates,
		gen:        d.Generator,
		metrics:    d.Metrics,
	}, nil
}

// Intake validates, scores and stores a new candidate. When only a generated
// answer is supplied the scorer is asked for metrics; if it fails the
// candidate goes to FULL_REVIEW.
func (s *Service) Intake(ctx context.Context, nc NewCandidate) (*model.Candidate, error) {
	if err := validateNewCandidate(nc); err != nil {
		return nil, err
	}

	m := nc.Metrics
	confidence := nc.GenerationConfidence
	if m.Empty() && nc.GeneratedAnswer != nil && s.gen != nil {
		resp, err := s.gen.Score(ctx, generator.ScoreRequest{
			Question:        nc.QuestionText,
			StaffAnswer:     nc.StaffAnswer,
			GeneratedAnswer: *nc.GeneratedAnswer,
		})
		switch {
		case err != nil:
			zap.L().Warn("review: scorer unavailable, routing to full review", zap.Error(err))
			s.metrics.Degraded(generator.ServiceName)
		case scoring.ValidateMetrics(fromGeneratorMetrics(resp.Metrics)) != nil:
			zap.L().Warn("review: scorer returned out-of-range metrics, routing to full review")
		default:
			m = fromGeneratorMetrics(resp.Metrics)
		}
	}
	c := candidateRecord(nc, s.router.Score(m, confidence))
	if err := s.store.CreateCandidate(ctx, c); err != nil {
		return nil, eris.Wrap(err, "review: intake")
	}
	s.metrics.Ingested(string(c.Routing))
	zap.L().Info("review: candidate ingested",
		zap.String("candidate_id", c.ID),
		zap.String("routing", string(c.Routing)),
	)
	return c, nil
}

// Import validates and routes a batch of candidates and stores them in a
// single bulk write. Metrics are taken as supplied; the scorer is not called.
func (s *Service) Import(ctx context.Context, ncs []NewCandidate) (int64, error) {
	cs := make([]model.Candidate, 0, len(ncs))
	for i, nc := range ncs {
		if err := validateNewCandidate(nc); err != nil {
			return 0, eris.Wrapf(err, "review: import record %d", i+1)
		}
		cs = append(cs, *candidateRecord(nc, s.router.Score(nc.Metrics, nc.GenerationConfidence)))
	}
	if len(cs) == 0 {
		return 0, nil
	}

	n, err := s.store.BulkCreateCandidates(ctx, cs)
	if err != nil {
		return 0, eris.Wrap(err, "review: import")
	}
	for _, c := range cs {
		s.metrics.Ingested(string(c.Routing))
	}
	zap.L().Info("review: candidates imported", zap.Int64("count", n))
	return n, nil
}

// Get returns a candidate with its score breakdown and calibration flags.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &View{Candidate: *c, ScoreBreakdown: scoring.Breakdown(c.Metrics)}
	if c.ReviewStatus == model.ReviewPending {
		if v.RequiresRating, err = s.calib.RequiresHumanRating(ctx, c); err != nil {
			return nil, err
		}
		if v.AutoSendable, err = s.calib.CanAutoSend(ctx, c); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ListQueue lists candidates, pending by default, least-skipped and oldest first.
func (s *Service) ListQueue(ctx context.Context, filter store.CandidateFilter) ([]model.Candidate, error) {
	if err := validateQueueFilter(filter); err != nil {
		return nil, err
	}
	if filter.Status == "" {
		filter.Status = model.ReviewPending
	}
	out, err := s.store.ListCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Candidate{}
	}
	return out, nil
}

// Approve publishes the candidate's effective question and answer as a new
// FAQ. Unless forced, a near-duplicate at or above the block threshold
// refuses the approval with the matches attached.
func (s *Service) Approve(ctx context.Context, id string, opts ApproveOptions) (*model.FAQ, error) {
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requirePending(c); err != nil {
		return nil, err
	}
	faq := approvedFAQ(c)
	if faq.Question == "" || faq.Answer == "" {
		return nil, apperr.Validation("answer", "question and answer text are required")
	}

	if c.HasGeneratedAnswer() && c.Rating == nil {
		required, err := s.calib.RequiresHumanRating(ctx, c)
		if err != nil {
			return nil, err
		}
		if required {
			return nil, apperr.Validation("rating", "rate the generated answer before approving while calibration is collecting")
		}
	}

	if !opts.Force && s.duplicates != nil {
		if matches := s.duplicates.Blocking(ctx, faq.Question, ""); len(matches) > 0 {
			s.metrics.Blocked()
			zap.L().Info("review: approval blocked by near-duplicate",
				zap.String("candidate_id", id),
				zap.String("faq_id", matches[0].FAQID),
				zap.Float64("similarity", matches[0].Similarity),
			)
			return nil, apperr.DuplicateConflict("candidate", id, matches)
		}
	}

	if err := s.store.ApproveCandidate(ctx, id, opts.Actor, faq); err != nil {
		return nil, err
	}
	s.transitioned("approve", id, opts.Actor, zap.String("faq_id", faq.ID), zap.Bool("forced", opts.Force))
	return faq, nil
}

// Reject closes the candidate with a reason from the closed set.
func (s *Service) Reject(ctx context.Context, id string, reason model.RejectionReason, note, actor string) error {
	note, err := validateRejection(reason, note)
	if err != nil {
		return err
	}
	if err := s.store.RejectCandidate(ctx, id, actor, reason, note); err != nil {
		return err
	}
	s.transitioned("reject", id, actor, zap.String("reason", string(reason)))
	return nil
}

// Skip moves the candidate behind unskipped ones. It stays pending.
func (s *Service) Skip(ctx context.Context, id, actor string) error {
	if err := s.store.SkipCandidate(ctx, id, actor); err != nil {
		return err
	}
	s.transitioned("skip", id, actor)
	return nil
}

// Rate records a rating for the candidate's current answer and returns the
// calibration status after it.
func (s *Service) Rate(ctx context.Context, id string, rating model.Rating, actor string) (*model.CalibrationStatus, error) {
	if !rating.Valid() {
		return nil, apperr.Validation("rating", "must be good or needs_improvement")
	}
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasGeneratedAnswer() {
		return nil, apperr.Validation("rating", "candidate has no generated answer to rate")
	}

	counted, err := s.store.RateCandidate(ctx, store.RatingInput{
		CandidateID:   id,
		AnswerVersion: c.AnswerVersion,
		Rating:        rating,
		Actor:         actor,
	}, s.calib.Eligible)
	if err != nil {
		return nil, err
	}
	s.metrics.Rated(string(rating), counted)
	s.transitioned("rate", id, actor, zap.String("rating", string(rating)), zap.Bool("calibration_sample", counted))
	return s.calib.Observe(ctx, id, counted)
}

// Regenerate asks the generator for a new answer under protocol. The rating
// of the previous answer is discarded; metrics change only if the generator
// returned them.
func (s *Service) Regenerate(ctx context.Context, id string, protocol model.Protocol, actor string) (*View, error) {
	if !protocol.Valid() {
		return nil, apperr.Validation("protocol", "unknown protocol "+string(protocol))
	}
	if s.gen == nil {
		return nil, apperr.Upstream(generator.ServiceName, eris.New("generator not configured"))
	}
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requirePending(c); err != nil {
		return nil, err
	}

	resp, err := s.gen.Generate(ctx, generator.GenerateRequest{
		Question:    c.EffectiveQuestion(),
		Protocol:    string(protocol),
		StaffAnswer: c.EffectiveAnswer(),
	})
	if err != nil {
		s.metrics.Degraded(generator.ServiceName)
		return nil, apperr.Upstream(generator.ServiceName, err)
	}

	up := model.AnswerUpdate{Protocol: protocol, GeneratedAnswer: resp.Answer}
	if resp.Metrics != nil {
		m := fromGeneratorMetrics(*resp.Metrics)
		if err := scoring.ValidateMetrics(m); err != nil {
			return nil, apperr.Upstream(generator.ServiceName, err)
		}
		scores := s.router.Score(m, resp.Confidence)
		up.Scores = &scores
	}
	if err := s.store.ReplaceAnswer(ctx, id, c.AnswerVersion, up); err != nil {
		return nil, err
	}
	s.transitioned("regenerate", id, actor, zap.String("protocol", string(protocol)), zap.Int("answer_version", c.AnswerVersion+1))
	return s.Get(ctx, id)
}

// Update stores reviewer edits. The original question and answer are kept.
func (s *Service) Update(ctx context.Context, id string, edit model.CandidateEdit, actor string) (*View, error) {
	if err := validateEdit(edit); err != nil {
		return nil, err
	}
	if err := s.store.EditCandidate(ctx, id, edit); err != nil {
		return nil, err
	}
	s.transitioned("edit", id, actor)
	return s.Get(ctx, id)
}

// IngestScores stores scorer output for a specific answer version. Scores for
// a superseded answer are refused.
func (s *Service) IngestScores(ctx context.Context, id string, answerVersion int, m model.Metrics, confidence *float64) (*View, error) {
	if answerVersion <= 0 {
		return nil, apperr.Validation("answer_version", "required")
	}
	if err := scoring.ValidateMetrics(m); err != nil {
		return nil, err
	}
	if err := validateConfidence(confidence); err != nil {
		return nil, err
	}
	up := s.router.Score(m, confidence)
	if err := s.store.SetScores(ctx, id, answerVersion, up); err != nil {
		return nil, err
	}
	zap.L().Info("review: scores ingested",
		zap.String("candidate_id", id),
		zap.Int("answer_version", answerVersion),
		zap.String("routing", string(up.Routing)),
	)
	return s.Get(ctx, id)
}

// Rescore asks the scorer again for the candidate's current answer.
func (s *Service) Rescore(ctx context.Context, id string) (*View, error) {
	if s.gen == nil {
		return nil, apperr.Upstream(generator.ServiceName, eris.New("generator not configured"))
	}
	c, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requirePending(c); err != nil {
		return nil, err
	}
	if c.GeneratedAnswer == nil {
		return nil, apperr.Validation("generated_answer", "nothing to score")
	}

	resp, err := s.gen.Score(ctx, generator.ScoreRequest{
		Question:        c.EffectiveQuestion(),
		StaffAnswer:     c.EffectiveAnswer(),
		GeneratedAnswer: *c.GeneratedAnswer,
	})
	if err != nil {
		s.metrics.Degraded(generator.ServiceName)
		return nil, apperr.Upstream(generator.ServiceName, err)
	}
	m := fromGeneratorMetrics(resp.Metrics)
	if err := scoring.ValidateMetrics(m); err != nil {
		return nil, apperr.Upstream(generator.ServiceName, err)
	}
	return s.IngestScores(ctx, id, c.AnswerVersion, m, c.GenerationConfidence)
}

func (s *Service) transitioned(action, id, actor string, fields ...zap.Field) {
	s.metrics.Transition(action)
	zap.L().Info("review: "+action,
		append([]zap.Field{zap.String("candidate_id", id), zap.String("actor", actor)}, fields...)...,
	)
}
