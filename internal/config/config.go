package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store             StoreConfig             `yaml:"store" mapstructure:"store"`
	Server            ServerConfig            `yaml:"server" mapstructure:"server"`
	Log               LogConfig               `yaml:"log" mapstructure:"log"`
	Routing           RoutingConfig           `yaml:"routing" mapstructure:"routing"`
	Calibration       CalibrationConfig       `yaml:"calibration" mapstructure:"calibration"`
	Similarity        SimilarityConfig        `yaml:"similarity" mapstructure:"similarity"`
	Duplicate         DuplicateConfig         `yaml:"duplicate" mapstructure:"duplicate"`
	Generator         GeneratorConfig         `yaml:"generator" mapstructure:"generator"`
	SimilarityService SimilarityServiceConfig `yaml:"similarity_service" mapstructure:"similarity_service"`
	Batch             BatchConfig             `yaml:"batch" mapstructure:"batch"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RoutingConfig holds the review queue cutoffs applied to the final score.
type RoutingConfig struct {
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	SpotCheckThreshold   float64 `yaml:"spot_check_threshold" mapstructure:"spot_check_threshold"`
}

// CalibrationConfig configures the calibration sample collection.
type CalibrationConfig struct {
	SamplesRequired int `yaml:"samples_required" mapstructure:"samples_required"`
}

// SimilarityConfig holds the lower bound of each near-duplicate tier.
type SimilarityConfig struct {
	LikelyDuplicate float64 `yaml:"likely_duplicate" mapstructure:"likely_duplicate"`
	VerySimilar     float64 `yaml:"very_similar" mapstructure:"very_similar"`
	Similar         float64 `yaml:"similar" mapstructure:"similar"`
	Related         float64 `yaml:"related" mapstructure:"related"`
}

// DuplicateConfig configures near-duplicate checks and resolution.
type DuplicateConfig struct {
	BlockThreshold float64       `yaml:"block_threshold" mapstructure:"block_threshold"`
	DefaultLimit   int           `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit       int           `yaml:"max_limit" mapstructure:"max_limit"`
	RestoreWindow  time.Duration `yaml:"restore_window" mapstructure:"restore_window"`
}

// GeneratorConfig holds answer-generation service settings.
type GeneratorConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// SimilarityServiceConfig holds embedding/similarity service settings.
type SimilarityServiceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BatchConfig configures batch commands.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// searches the working directory for config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("REVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "review.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("routing.auto_approve_threshold", 0.90)
	v.SetDefault("routing.spot_check_threshold", 0.75)
	v.SetDefault("calibration.samples_required", 100)
	v.SetDefault("similarity.likely_duplicate", 0.95)
	v.SetDefault("similarity.very_similar", 0.85)
	v.SetDefault("similarity.similar", 0.75)
	v.SetDefault("similarity.related", 0.65)
	v.SetDefault("duplicate.block_threshold", 0.85)
	v.SetDefault("duplicate.default_limit", 5)
	v.SetDefault("duplicate.max_limit", 20)
	v.SetDefault("duplicate.restore_window", 24*time.Hour)
	v.SetDefault("generator.base_url", "http://localhost:8000")
	v.SetDefault("generator.timeout_secs", 60)
	v.SetDefault("generator.rate_per_sec", 5)
	v.SetDefault("similarity_service.base_url", "http://localhost:8000")
	v.SetDefault("similarity_service.timeout_secs", 10)
	v.SetDefault("similarity_service.rate_per_sec", 20)
	v.SetDefault("batch.max_concurrency", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that thresholds are ordered and in range.
func (c *Config) Validate() error {
	var errs []string

	r := c.Routing
	if r.SpotCheckThreshold < 0 || r.AutoApproveThreshold > 1 {
		errs = append(errs, "routing thresholds must be within [0,1]")
	}
	if r.SpotCheckThreshold >= r.AutoApproveThreshold {
		errs = append(errs, "routing.spot_check_threshold must be below routing.auto_approve_threshold")
	}

	if c.Calibration.SamplesRequired <= 0 {
		errs = append(errs, "calibration.samples_required must be > 0")
	}

	s := c.Similarity
	if !(s.Related > 0 && s.Related < s.Similar && s.Similar < s.VerySimilar && s.VerySimilar < s.LikelyDuplicate && s.LikelyDuplicate <= 1) {
		errs = append(errs, "similarity tiers must satisfy 0 < related < similar < very_similar < likely_duplicate <= 1")
	}

	d := c.Duplicate
	if d.BlockThreshold < s.Related || d.BlockThreshold > 1 {
		errs = append(errs, fmt.Sprintf("duplicate.block_threshold must be within [%.2f,1]", s.Related))
	}
	if d.DefaultLimit <= 0 || d.MaxLimit < d.DefaultLimit {
		errs = append(errs, "duplicate limits must satisfy 0 < default_limit <= max_limit")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
