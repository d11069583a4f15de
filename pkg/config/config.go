package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultModel              = "gpt-5.1"
	DefaultTemperature        = 0.7
	DefaultMaxCompletionToken = 4096
	DefaultGenerationTimeout  = 2 * time.Minute
	DefaultRequestsPerMinute  = 30
	DefaultMaxBudget          = 8
	DefaultFixedN             = 10
	DefaultCloneTimeout       = 5 * time.Minute
	DefaultEvalConcurrency    = 2
	DefaultAPIBind            = "127.0.0.1:7180"
)

// Config represents the complete miser configuration
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Repository RepositoryConfig `yaml:"repository"`
	Solver     SolverConfig     `yaml:"solver"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// GenerationConfig configures the LLM completion boundary
type GenerationConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"api_key"` // Usually via OPENAI_API_KEY
	Model               string        `yaml:"model"`
	Temperature         float64       `yaml:"temperature"`
	MaxCompletionTokens int           `yaml:"max_completion_tokens"`
	Timeout             time.Duration `yaml:"timeout"`
	RequestsPerMinute   int           `yaml:"requests_per_minute"`
}

// PredictorConfig locates the trained complexity model artifact
type PredictorConfig struct {
	ArtifactPath string `yaml:"artifact_path"`
	MaxBudget    int    `yaml:"max_budget"` // Cap on allocated N
}

// RepositoryConfig controls checkout caching
type RepositoryConfig struct {
	CacheDir     string        `yaml:"cache_dir"`
	CloneTimeout time.Duration `yaml:"clone_timeout"`
}

// SolverConfig controls the adaptive controller
type SolverConfig struct {
	Mode            string `yaml:"mode"`   // adaptive | baseline | fixed
	FixedN          int    `yaml:"fixed_n"`
	EarlyStop       *bool  `yaml:"early_stop"`
	EvalConcurrency int    `yaml:"eval_concurrency"`
}

// StorageConfig locates the results database
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// APIConfig controls the read-only results API
type APIConfig struct {
	Bind string `yaml:"bind"`
}

// TelemetryConfig controls tracing output
type TelemetryConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled"`
}

// EarlyStopEnabled reports whether the generation loop stops at the first
// applicable candidate. Defaults to true for adaptive mode.
func (c *SolverConfig) EarlyStopEnabled() bool {
	if c.EarlyStop == nil {
		return true
	}
	return *c.EarlyStop
}

// Load reads configuration from an optional yaml file, layering .env and
// environment overrides on top. A missing file is not an error; missing
// required values are caught by Validate.
func Load(path string) (*Config, error) {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Generation.APIKey == "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("MISER_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("MISER_BASE_URL"); v != "" {
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("MISER_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("MISER_PREDICTOR_ARTIFACT"); v != "" {
		c.Predictor.ArtifactPath = v
	}
	if v := os.Getenv("MISER_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("MISER_CACHE_DIR"); v != "" {
		c.Repository.CacheDir = v
	}
	if v := os.Getenv("MISER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MISER_API_BIND"); v != "" {
		c.API.Bind = v
	}
	if v := os.Getenv("MISER_EVAL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Solver.EvalConcurrency = n
		}
	}
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".miser")

	if c.Generation.Model == "" {
		c.Generation.Model = DefaultModel
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = DefaultTemperature
	}
	if c.Generation.MaxCompletionTokens == 0 {
		c.Generation.MaxCompletionTokens = DefaultMaxCompletionToken
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = DefaultGenerationTimeout
	}
	if c.Generation.RequestsPerMinute == 0 {
		c.Generation.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Predictor.ArtifactPath == "" {
		c.Predictor.ArtifactPath = filepath.Join("models", "complexity_predictor.json")
	}
	if c.Predictor.MaxBudget == 0 {
		c.Predictor.MaxBudget = DefaultMaxBudget
	}
	if c.Repository.CacheDir == "" {
		c.Repository.CacheDir = filepath.Join(stateDir, "repos")
	}
	if c.Repository.CloneTimeout == 0 {
		c.Repository.CloneTimeout = DefaultCloneTimeout
	}
	if c.Solver.Mode == "" {
		c.Solver.Mode = "adaptive"
	}
	if c.Solver.FixedN == 0 {
		c.Solver.FixedN = DefaultFixedN
	}
	if c.Solver.EvalConcurrency == 0 {
		c.Solver.EvalConcurrency = DefaultEvalConcurrency
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(stateDir, "results.db")
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(stateDir, "logs")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.API.Bind == "" {
		c.API.Bind = DefaultAPIBind
	}
}

// Validate checks the configuration for values that would fail later in a
// harder-to-diagnose way.
func (c *Config) Validate() error {
	switch c.Solver.Mode {
	case "adaptive", "baseline", "fixed":
	default:
		return fmt.Errorf("solver.mode must be adaptive, baseline, or fixed (got %q)", c.Solver.Mode)
	}

	if c.Solver.FixedN < 1 {
		return fmt.Errorf("solver.fixed_n must be at least 1 (got %d)", c.Solver.FixedN)
	}
	if c.Predictor.MaxBudget < 1 {
		return fmt.Errorf("predictor.max_budget must be at least 1 (got %d)", c.Predictor.MaxBudget)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2] (got %g)", c.Generation.Temperature)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}

	return nil
}

// RequireAPIKey returns an actionable error when no completion API key is
// configured. Commands that never call the generator skip this check.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Generation.APIKey) == "" {
		return fmt.Errorf("no completion API key configured; set OPENAI_API_KEY (or MISER_API_KEY, or generation.api_key in the config file)")
	}
	return nil
}
