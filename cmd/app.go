package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/api"
	"github.com/bisq-support/review-engine/internal/calibration"
	"github.com/bisq-support/review-engine/internal/duplicate"
	"github.com/bisq-support/review-engine/internal/metrics"
	"github.com/bisq-support/review-engine/internal/resilience"
	"github.com/bisq-support/review-engine/internal/review"
	"github.com/bisq-support/review-engine/internal/scoring"
	"github.com/bisq-support/review-engine/internal/store"
	"github.com/bisq-support/review-engine/pkg/generator"
	"github.com/bisq-support/review-engine/pkg/similarity"
)

// app holds the wired services shared by the commands.
type app struct {
	Store       store.Store
	Router      *scoring.Router
	Tiers       *scoring.TierClassifier
	Calibration *calibration.Tracker
	Checker     *duplicate.Checker
	Similar     *duplicate.Engine
	Reviews     *review.Service
	Breakers    *resilience.ServiceBreakers
	Metrics     *metrics.Metrics
}

// buildApp wires the domain services on top of an open store.
func buildApp(ctx context.Context, st store.Store) (*app, error) {
	router, err := scoring.NewRouter(cfg.Routing)
	if err != nil {
		return nil, eris.Wrap(err, "init router")
	}
	tiers, err := scoring.NewTierClassifier(cfg.Similarity)
	if err != nil {
		return nil, eris.Wrap(err, "init tiers")
	}

	tracker, err := calibration.NewTracker(st, router, cfg.Calibration.SamplesRequired)
	if err != nil {
		return nil, eris.Wrap(err, "init calibration")
	}
	if err := tracker.Init(ctx); err != nil {
		return nil, eris.Wrap(err, "init calibration")
	}

	m := metrics.New()
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig(),
		func(service string, from, to resilience.CircuitState) {
			m.SetBreakerState(service, int(to))
			zap.L().Warn("circuit breaker state change",
				zap.String("service", service),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		})

	gen := initGenerator(breakers)
	sim := initSimilarity(breakers)

	checker := duplicate.NewChecker(sim, tiers, cfg.Duplicate)
	reviews, err := review.NewService(review.Deps{
		Store:       st,
		Calibration: tracker,
		Router:      router,
		Duplicates:  checker,
		Generator:   gen,
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		Store:       st,
		Router:      router,
		Tiers:       tiers,
		Calibration: tracker,
		Checker:     checker,
		Similar:     duplicate.NewEngine(st, tiers, cfg.Duplicate.RestoreWindow),
		Reviews:     reviews,
		Breakers:    breakers,
		Metrics:     m,
	}, nil
}

// Handler returns the HTTP API over the app's services.
func (a *app) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Reviews:     a.Reviews,
		Similar:     a.Similar,
		Checker:     a.Checker,
		Calibration: a.Calibration,
		FAQs:        a.Store,
		Breakers:    a.Breakers,
		Metrics:     a.Metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
}

func initGenerator(breakers *resilience.ServiceBreakers) generator.Client {
	timeout := time.Duration(cfg.Generator.TimeoutSecs) * time.Second
	retry := resilience.DefaultRetryConfig()
	guard := resilience.NewGuard(resilience.GuardConfig{
		Service: generator.ServiceName,
		Retry:   retry,
		Timeout: timeout * time.Duration(retry.MaxAttempts),
	}, breakers.Get(generator.ServiceName))

	return generator.NewClient(cfg.Generator.Key,
		generator.WithBaseURL(cfg.Generator.BaseURL),
		generator.WithHTTPClient(&http.Client{Timeout: timeout}),
		generator.WithRateLimit(cfg.Generator.RatePerSec),
		generator.WithGuard(guard),
	)
}

func initSimilarity(breakers *resilience.ServiceBreakers) similarity.Client {
	timeout := time.Duration(cfg.SimilarityService.TimeoutSecs) * time.Second
	retry := resilience.DefaultRetryConfig()
	guard := resilience.NewGuard(resilience.GuardConfig{
		Service: similarity.ServiceName,
		Retry:   retry,
		Timeout: timeout * time.Duration(retry.MaxAttempts),
	}, breakers.Get(similarity.ServiceName))

	return similarity.NewClient(cfg.SimilarityService.Key,
		similarity.WithBaseURL(cfg.SimilarityService.BaseURL),
		similarity.WithHTTPClient(&http.Client{Timeout: timeout}),
		similarity.WithRateLimit(cfg.SimilarityService.RatePerSec),
		similarity.WithGuard(guard),
	)
}
