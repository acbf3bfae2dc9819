// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/llm"
)

// Environment variables consulted by ApplyEnv
const (
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvCheckpointPath = "ULP_CHECKPOINT_PATH"
	EnvPort           = "PORT"
)

// DefaultCheckpointPath is the SQLite file used by the CLI when none is configured
const DefaultCheckpointPath = "ulp_checkpoints.db"

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, CLI flags or environment variables.
type Config struct {
	// Generation service
	APIKey string `json:"api_key,omitempty"`                                                // Gemini API key
	Tier   string `json:"tier,omitempty"` // Model tier for sections
	Model  string `json:"model,omitempty"`                                                  // Overrides the model name for Tier

	// Generation limits
	MaxAttempts           int   `json:"max_attempts,omitempty" validate:"gte=0,lte=10"`            // Attempts per section
	AttemptTimeoutSeconds int   `json:"attempt_timeout_seconds,omitempty" validate:"gte=0"`        // Per-attempt deadline
	SectionMaxTokens      int   `json:"section_max_tokens,omitempty" validate:"gte=0"`             // Output budget for sections
	OutlineMaxTokens      int   `json:"outline_max_tokens,omitempty" validate:"gte=0"`             // Output budget for the outline
	ContextMaxBytes       int   `json:"context_max_bytes,omitempty" validate:"gte=0"`              // 0 keeps the whole context log
	MonthlyLimit          int64 `json:"monthly_limit,omitempty" validate:"gte=0"`                  // Calls allowed per calendar month
	TransportRetries      int   `json:"transport_retries,omitempty" validate:"gte=0,lte=10"`       // Backoff retries for busy responses
	BackoffInitialSeconds int   `json:"backoff_initial_seconds,omitempty" validate:"gte=0,lte=60"` // First backoff delay

	// Storage
	DatabaseURL    string `json:"database_url,omitempty"`    // PostgreSQL connection URL (server)
	CheckpointPath string `json:"checkpoint_path,omitempty"` // SQLite checkpoint file (CLI)

	// Output and server
	OutputDir string `json:"output_dir,omitempty"`                    // Where rendered documents are written
	Port      int    `json:"port,omitempty" validate:"gte=0,lte=65535"` // HTTP port for serve
	Verbose   bool   `json:"verbose,omitempty"`                       // Print detailed debug information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Tier != "" && llm.ParseTier(c.Tier) == "" {
		return fmt.Errorf("config error: unknown tier %q", c.Tier)
	}
	return nil
}

// ApplyEnv fills empty fields from environment variables
func (c *Config) ApplyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = os.Getenv(EnvCheckpointPath)
	}
	if c.Port == 0 {
		var port int
		if _, err := fmt.Sscanf(strings.TrimSpace(os.Getenv(EnvPort)), "%d", &port); err == nil {
			c.Port = port
		}
	}
}

// Defaults returns the built-in configuration values
func Defaults() Config {
	return Config{
		Tier:                  string(llm.TierStandard),
		MaxAttempts:           generation.DefaultMaxAttempts,
		AttemptTimeoutSeconds: int(generation.DefaultAttemptTimeout / time.Second),
		SectionMaxTokens:      generation.DefaultSectionMaxTokens,
		OutlineMaxTokens:      generation.DefaultOutlineMaxTokens,
		MonthlyLimit:          llm.DefaultMonthlyLimit,
		TransportRetries:      llm.DefaultPolicy().MaxRetries,
		BackoffInitialSeconds: int(llm.DefaultPolicy().Initial / time.Second),
		CheckpointPath:        DefaultCheckpointPath,
		OutputDir:             "out",
		Port:                  8080,
	}
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Tier == "" {
		result.Tier = defaults.Tier
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.CheckpointPath == "" {
		result.CheckpointPath = defaults.CheckpointPath
	}
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}

	// Numeric fields: use default if zero
	if result.MaxAttempts == 0 {
		result.MaxAttempts = defaults.MaxAttempts
	}
	if result.AttemptTimeoutSeconds == 0 {
		result.AttemptTimeoutSeconds = defaults.AttemptTimeoutSeconds
	}
	if result.SectionMaxTokens == 0 {
		result.SectionMaxTokens = defaults.SectionMaxTokens
	}
	if result.OutlineMaxTokens == 0 {
		result.OutlineMaxTokens = defaults.OutlineMaxTokens
	}
	if result.ContextMaxBytes == 0 {
		result.ContextMaxBytes = defaults.ContextMaxBytes
	}
	if result.MonthlyLimit == 0 {
		result.MonthlyLimit = defaults.MonthlyLimit
	}
	if result.TransportRetries == 0 {
		result.TransportRetries = defaults.TransportRetries
	}
	if result.BackoffInitialSeconds == 0 {
		result.BackoffInitialSeconds = defaults.BackoffInitialSeconds
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// GenerationOptions maps the configuration onto generator options
func (c *Config) GenerationOptions() generation.Options {
	return generation.Options{
		MaxAttempts:      c.MaxAttempts,
		AttemptTimeout:   time.Duration(c.AttemptTimeoutSeconds) * time.Second,
		RetryDelay:       generation.DefaultRetryDelay,
		SectionMaxTokens: c.SectionMaxTokens,
		OutlineMaxTokens: c.OutlineMaxTokens,
		Tier:             llm.ParseTier(c.Tier),
	}
}

// RetryPolicy returns the transport backoff policy
func (c *Config) RetryPolicy() llm.Policy {
	return llm.NewPolicy(llm.BackoffExponential, time.Duration(c.BackoffInitialSeconds)*time.Second, 0, c.TransportRetries)
}

// ModelConfig returns the model configuration with any Model override applied
func (c *Config) ModelConfig() *llm.Config {
	cfg := llm.DefaultConfig()
	if c.Model == "" {
		return cfg
	}
	tier := llm.ParseTier(c.Tier)
	if tier == "" {
		tier = llm.TierStandard
	}
	return cfg.WithModel(tier, c.Model)
}
