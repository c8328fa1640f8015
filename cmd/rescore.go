package main

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bisq-support/review-engine/internal/model"
	"github.com/bisq-support/review-engine/internal/store"
)

var (
	rescoreLimit       int
	rescoreConcurrency int
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Ask the scorer for metrics on pending candidates that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := buildApp(ctx, st)
		if err != nil {
			return err
		}

		pending, err := st.ListCandidates(ctx, store.CandidateFilter{Unscored: true, Limit: rescoreLimit})
		if err != nil {
			return eris.Wrap(err, "list unscored candidates")
		}

		concurrency := rescoreConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrency
		}
		_, err = rescoreBatch(ctx, pending, concurrency, func(ctx context.Context, id string) (model.Routing, error) {
			v, err := a.Reviews.Rescore(ctx, id)
			if err != nil {
				return "", err
			}
			return v.Routing, nil
		})
		return err
	},
}

// rescoreFunc scores one candidate and returns its new routing.
type rescoreFunc func(ctx context.Context, id string) (model.Routing, error)

// rescoreBatch rescores candidates concurrently. Individual failures are
// logged and counted, not returned.
func rescoreBatch(ctx context.Context, candidates []model.Candidate, concurrency int, rescore rescoreFunc) (int64, error) {
	if len(candidates) == 0 {
		zap.L().Info("no unscored candidates found")
		return 0, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("rescoring batch",
		zap.Int("candidates", len(candidates)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	for _, c := range candidates {
		g.Go(func() error {
			log := zap.L().With(zap.String("candidate_id", c.ID))

			routing, err := rescore(gctx, c.ID)
			if err != nil {
				failed.Add(1)
				log.Error("rescore failed", zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			log.Info("rescore complete", zap.String("routing", string(routing)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return succeeded.Load(), eris.Wrap(err, "rescore batch")
	}

	zap.L().Info("rescore complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return succeeded.Load(), nil
}

func init() {
	rescoreCmd.Flags().IntVar(&rescoreLimit, "limit", 100, "maximum candidates to rescore")
	rescoreCmd.Flags().IntVar(&rescoreConcurrency, "concurrency", 0, "parallel scorer calls (defaults to batch.max_concurrency)")
	rootCmd.AddCommand(rescoreCmd)
}
