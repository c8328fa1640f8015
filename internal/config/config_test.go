package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "review.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.90, cfg.Routing.AutoApproveThreshold, 0.0001)
	assert.InDelta(t, 0.75, cfg.Routing.SpotCheckThreshold, 0.0001)
	assert.Equal(t, 100, cfg.Calibration.SamplesRequired)
	assert.InDelta(t, 0.95, cfg.Similarity.LikelyDuplicate, 0.0001)
	assert.InDelta(t, 0.85, cfg.Similarity.VerySimilar, 0.0001)
	assert.InDelta(t, 0.75, cfg.Similarity.Similar, 0.0001)
	assert.InDelta(t, 0.65, cfg.Similarity.Related, 0.0001)
	assert.InDelta(t, 0.85, cfg.Duplicate.BlockThreshold, 0.0001)
	assert.Equal(t, 5, cfg.Duplicate.DefaultLimit)
	assert.Equal(t, 20, cfg.Duplicate.MaxLimit)
	assert.Equal(t, 24*time.Hour, cfg.Duplicate.RestoreWindow)
	assert.Equal(t, 60, cfg.Generator.TimeoutSecs)
	assert.Equal(t, 10, cfg.SimilarityService.TimeoutSecs)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/review
log:
  level: debug
  format: console
server:
  port: 9090
routing:
  auto_approve_threshold: 0.92
calibration:
  samples_required: 25
duplicate:
  restore_window: 1h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.92, cfg.Routing.AutoApproveThreshold, 0.0001)
	assert.Equal(t, 25, cfg.Calibration.SamplesRequired)
	assert.Equal(t, time.Hour, cfg.Duplicate.RestoreWindow)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.75, cfg.Routing.SpotCheckThreshold, 0.0001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("REVIEW_STORE_DRIVER", "postgres")
	t.Setenv("REVIEW_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("REVIEW_SERVER_PORT", "3000")
	t.Setenv("REVIEW_CALIBRATION_SAMPLES_REQUIRED", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Calibration.SamplesRequired)
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
routing:
  auto_approve_threshold: 0.70
  spot_check_threshold: 0.80
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spot_check_threshold must be below")
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Routing = RoutingConfig{AutoApproveThreshold: 0.90, SpotCheckThreshold: 0.75}
	cfg.Calibration.SamplesRequired = 100
	cfg.Similarity = SimilarityConfig{LikelyDuplicate: 0.95, VerySimilar: 0.85, Similar: 0.75, Related: 0.65}
	cfg.Duplicate = DuplicateConfig{BlockThreshold: 0.85, DefaultLimit: 5, MaxLimit: 20}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"samples required zero", func(c *Config) { c.Calibration.SamplesRequired = 0 }, "samples_required"},
		{"tiers out of order", func(c *Config) { c.Similarity.Similar = 0.9 }, "similarity tiers"},
		{"related zero", func(c *Config) { c.Similarity.Related = 0 }, "similarity tiers"},
		{"block below related", func(c *Config) { c.Duplicate.BlockThreshold = 0.5 }, "block_threshold"},
		{"limits inverted", func(c *Config) { c.Duplicate.MaxLimit = 2 }, "duplicate limits"},
		{"routing above one", func(c *Config) { c.Routing.AutoApproveThreshold = 1.2 }, "within [0,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestLoadFileExplicitPath(t *testing.T) {
	dir := chdirTemp(t)

	// A config.yaml in the working directory is ignored when a path is given.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 7000\n"), 0644))
	path := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nlog:\n  level: warn\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFileMissingPath(t *testing.T) {
	dir := chdirTemp(t)

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}
