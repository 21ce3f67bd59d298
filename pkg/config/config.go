package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Config is the YAML file surface mirroring the programmatic options. The
// functional options on the components remain the primary API; this feeds
// them for CLI and example use.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Playbook store configuration
	Playbook PlaybookConfig `yaml:"playbook,omitempty" validate:"omitempty"`

	// Adaptation loop configuration
	Adaptation AdaptationConfig `yaml:"adaptation,omitempty" validate:"omitempty"`

	// Completion cache configuration
	Cache CacheConfig `yaml:"cache,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// LLMConfig holds the provider and generation settings.
type LLMConfig struct {
	// Provider name (anthropic, ollama)
	Provider string `yaml:"provider" validate:"required,oneof=anthropic ollama"`

	// Model ID (e.g., claude-sonnet-4-5)
	ModelID string `yaml:"model_id" validate:"required"`

	// Environment variable holding the API key. The key itself never goes
	// in the file.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Generation parameters
	MaxTokens   int     `yaml:"max_tokens,omitempty" validate:"omitempty,min=1,max=200000"`
	Temperature float64 `yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
}

// APIKey resolves the API key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// PlaybookConfig holds the playbook store settings.
type PlaybookConfig struct {
	// Path of the JSON snapshot file
	Path string `yaml:"path,omitempty"`

	// Maximum bullets before maintenance kicks in (0 = unlimited)
	MaxBullets int `yaml:"max_bullets,omitempty" validate:"omitempty,min=0"`

	// Token-overlap similarity threshold for dedup (0 = default)
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty" validate:"omitempty,min=0,max=1"`

	// Harmful-over-helpful margin before a bullet is prunable
	PruneMargin int `yaml:"prune_margin,omitempty" validate:"omitempty,min=0"`

	// Minimum total uses before a bullet may be pruned
	MinEvidence int `yaml:"min_evidence,omitempty" validate:"omitempty,min=0"`
}

// AdaptationConfig holds the adaptation loop settings.
type AdaptationConfig struct {
	// Number of passes over the sample set in offline runs
	Epochs int `yaml:"epochs,omitempty" validate:"omitempty,min=1"`

	// Parse-retry budget per role invocation
	MaxRetries int `yaml:"max_retries,omitempty" validate:"omitempty,min=1"`

	// Reflection refinement rounds on low-confidence output
	RefinementRounds int `yaml:"refinement_rounds,omitempty" validate:"omitempty,min=0"`

	// Recent reflections fed back to the generator
	ReflectionWindow int `yaml:"reflection_window,omitempty" validate:"omitempty,min=0"`

	// Curator context budget in approximate tokens (0 = disabled)
	ContextBudget int `yaml:"context_budget,omitempty" validate:"omitempty,min=0"`

	// Worker count for batch evaluation
	Concurrency int `yaml:"concurrency,omitempty" validate:"omitempty,min=1"`
}

// CacheConfig holds the completion cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Backend: memory or sqlite
	Backend string `yaml:"backend,omitempty" validate:"omitempty,oneof=memory sqlite"`

	// SQLite database path
	Path string `yaml:"path,omitempty"`

	// Entry TTL (0 = no expiration)
	TTL time.Duration `yaml:"ttl,omitempty" validate:"omitempty,min=0"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	// Level: DEBUG, INFO, WARN, ERROR or FATAL
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// Default returns a configuration with sensible defaults for local use.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			ModelID:     "claude-sonnet-4-5",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			MaxTokens:   8192,
			Temperature: 0.5,
		},
		Playbook: PlaybookConfig{
			Path:       "playbook.json",
			MaxBullets: 200,
		},
		Adaptation: AdaptationConfig{
			Epochs:           1,
			MaxRetries:       3,
			RefinementRounds: 1,
			ReflectionWindow: 3,
			ContextBudget:    2048,
			Concurrency:      4,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load reads and validates a configuration file. Fields absent from the file
// keep their Default() values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.NotFound, "config file not found"),
				errors.Fields{"path": path})
		}
		return nil, errors.Wrap(err, errors.Unknown, "failed to read config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
