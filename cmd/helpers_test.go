//go:build !integration

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bisq-support/review-engine/internal/config"
)

// useTestConfig installs a config backed by a temp SQLite file.
func useTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "review.db"),
		},
		Server: config.ServerConfig{Port: 0, CORSOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "error", Format: "json"},
		Routing: config.RoutingConfig{
			AutoApproveThreshold: 0.90,
			SpotCheckThreshold:   0.75,
		},
		Calibration: config.CalibrationConfig{SamplesRequired: 3},
		Similarity: config.SimilarityConfig{
			LikelyDuplicate: 0.95,
			VerySimilar:     0.85,
			Similar:         0.75,
			Related:         0.65,
		},
		Duplicate: config.DuplicateConfig{
			BlockThreshold: 0.85,
			DefaultLimit:   5,
			MaxLimit:       20,
			RestoreWindow:  24 * time.Hour,
		},
		Generator:         config.GeneratorConfig{BaseURL: "http://127.0.0.1:1", TimeoutSecs: 1, RatePerSec: 100},
		SimilarityService: config.SimilarityServiceConfig{BaseURL: "http://127.0.0.1:1", TimeoutSecs: 1, RatePerSec: 100},
		Batch:             config.BatchConfig{MaxConcurrency: 2},
	}
}
