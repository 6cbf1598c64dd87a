// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.paydesk/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model and embedder selection
//   - Memory: root directory of the per-persona retrieval memory dirs
//   - Warehouse: read-only PostgreSQL connection for the execute_sql tool
//   - Scoring: product/pricing recommendation service endpoint
//
// Security: the warehouse URL may embed credentials and is masked in
// MarshalJSON/String. Validation is fail-fast with sentinel errors usable
// via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidMemoryRoot indicates the memory root directory is invalid.
	ErrInvalidMemoryRoot = errors.New("invalid memory root")

	// ErrInvalidMaxToolRounds indicates the tool-loop bound is out of range.
	ErrInvalidMaxToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidScoringTimeout indicates the scoring timeout is out of range.
	ErrInvalidScoringTimeout = errors.New("invalid scoring timeout")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxToolRounds bounds the tool-resolution loop per turn.
	DefaultMaxToolRounds = 5

	// MaxAllowedToolRounds is the absolute cap on the loop bound.
	MaxAllowedToolRounds = 20
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash", "llama3.3", "gpt-4o")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Memory configuration: root directory containing one memory dir per
	// persona (chunks.txt, embeddings.gob, index.gob).
	MemoryRoot string `mapstructure:"memory_root" json:"memory_root"`

	// Default persona selected at startup.
	Persona string `mapstructure:"persona" json:"persona"`

	// Tool loop bound: maximum tool-resolution rounds per turn.
	MaxToolRounds int `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`

	// Warehouse configuration: pgx connection URL for the read-only
	// merchant data warehouse queried by the execute_sql tool.
	// Empty disables the SQL tool.
	WarehouseURL string `mapstructure:"warehouse_url" json:"warehouse_url"` // SENSITIVE: masked in MarshalJSON

	// Scoring service configuration (recommend_product / recommend_pricing).
	// Empty base URL disables the recommendation tools.
	ScoringURL       string `mapstructure:"scoring_url" json:"scoring_url"`
	ScoringTimeoutMS int    `mapstructure:"scoring_timeout_ms" json:"scoring_timeout_ms"`

	// Product codes currently quarantined for sale. recommend_pricing
	// refuses these and recommend_product annotates them.
	QuarantinedProducts []string `mapstructure:"quarantined_products" json:"quarantined_products"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.paydesk/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".paydesk")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults(home)
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(home string) {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Memory defaults
	viper.SetDefault("memory_root", filepath.Join(home, ".paydesk", "memory"))
	viper.SetDefault("persona", "dare")

	// Tool loop defaults
	viper.SetDefault("max_tool_rounds", DefaultMaxToolRounds)

	// Scoring defaults
	viper.SetDefault("scoring_timeout_ms", 10000)

	// Logging defaults
	viper.SetDefault("log_json", false)
	viper.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "PAYDESK_PROVIDER")
	mustBind("model_name", "PAYDESK_MODEL_NAME")
	mustBind("ollama_host", "PAYDESK_OLLAMA_HOST")
	mustBind("memory_root", "PAYDESK_MEMORY_ROOT")
	mustBind("persona", "PAYDESK_PERSONA")
	mustBind("warehouse_url", "PAYDESK_WAREHOUSE_URL")
	mustBind("scoring_url", "PAYDESK_SCORING_URL")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// NOTE: OPENAI_API_KEY is read directly by the Genkit OpenAI plugin.
}

// Validate checks configuration values and fails fast on the first problem.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (want gemini, googleai, ollama or openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.Provider == ProviderOllama && !strings.HasPrefix(c.OllamaHost, "http") {
		return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
	}
	if strings.TrimSpace(c.MemoryRoot) == "" {
		return fmt.Errorf("%w: memory root is empty", ErrInvalidMemoryRoot)
	}
	if c.MaxToolRounds < 1 || c.MaxToolRounds > MaxAllowedToolRounds {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidMaxToolRounds, c.MaxToolRounds, MaxAllowedToolRounds)
	}
	if c.ScoringTimeoutMS <= 0 {
		return fmt.Errorf("%w: %d ms", ErrInvalidScoringTimeout, c.ScoringTimeoutMS)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matching against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// Secrets of 8 chars or fewer are fully masked to prevent substring leaks.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - WarehouseURL (may embed a password)
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.WarehouseURL = maskSecret(a.WarehouseURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
