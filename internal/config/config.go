// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./surfers.yaml)
//  3. Default values
//
// Security: the upstream API key is never logged; MarshalJSON and String
// mask it explicitly. Validation fails fast with sentinel errors usable
// with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the upstream API key is not set.
	ErrMissingAPIKey = errors.New("missing upstream API key")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidMaxContinuations indicates the continuation budget is out of range.
	ErrInvalidMaxContinuations = errors.New("invalid max continuations")

	// ErrInvalidDataDir indicates the data directory is empty.
	ErrInvalidDataDir = errors.New("invalid data directory")
)

const (
	// MaxAllowedContinuations caps the continuation budget so a confused
	// upstream cannot be re-queried forever.
	MaxAllowedContinuations = 10

	// MaxAllowedTokens is the upper bound accepted for max_tokens.
	MaxAllowedTokens = 128000
)

// defaultSystemPrompt instructs the model to answer with a single
// self-contained web page. Overridable via system_prompt.
const defaultSystemPrompt = "You are a web app generator. " +
	"Reply with one complete, self-contained HTML document or module script. " +
	"Do not add commentary outside the code."

// defaultBrandReply answers brand questions without an upstream round trip.
const defaultBrandReply = "I'm the Surfers app builder, made by the Surfers team."

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update MarshalJSON.
type Config struct {
	// Upstream completion API
	UpstreamAPIKey  string  `mapstructure:"upstream_api_key" json:"upstream_api_key"` // SENSITIVE: masked in MarshalJSON
	UpstreamBaseURL string  `mapstructure:"upstream_base_url" json:"upstream_base_url"`
	ModelName       string  `mapstructure:"model_name" json:"model_name"`
	Temperature     float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Completion behaviour
	MaxContinuations  int      `mapstructure:"max_continuations" json:"max_continuations"`
	SystemPrompt      string   `mapstructure:"system_prompt" json:"system_prompt"`
	BrandReply        string   `mapstructure:"brand_reply" json:"brand_reply"`
	InterceptPatterns []string `mapstructure:"intercept_patterns" json:"intercept_patterns"`
	VisionEnabled     bool     `mapstructure:"vision_enabled" json:"vision_enabled"`

	// Storage
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// HTTP surface
	PublicBaseURL string   `mapstructure:"public_base_url" json:"public_base_url"`
	CORSOrigins   []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy    bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Forwarded-* headers (set true behind reverse proxy)
	RateRPS       float64  `mapstructure:"rate_rps" json:"rate_rps"`
	RateBurst     int      `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("surfers")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/surfers")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env carry the day.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/surfers"},
			"config_name", "surfers.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Upstream defaults (DeepSeek speaks the OpenAI wire protocol)
	v.SetDefault("upstream_base_url", "https://api.deepseek.com/v1")
	v.SetDefault("model_name", "deepseek-chat")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)

	// Completion defaults
	v.SetDefault("max_continuations", 5)
	v.SetDefault("system_prompt", defaultSystemPrompt)
	v.SetDefault("brand_reply", defaultBrandReply)
	v.SetDefault("intercept_patterns", []string{
		`who\s+(made|built|created)\s+you`,
		`what\s+(company|team)\s+(made|built|created)\s+you`,
	})
	v.SetDefault("vision_enabled", true)

	// Storage defaults
	v.SetDefault("data_dir", "./data")

	// HTTP defaults (Vite dev server origin)
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_rps", 5.0)
	v.SetDefault("rate_burst", 10)
}

// bindEnvVariables binds environment variables explicitly. Only the knobs
// that change between deployments get an env override.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded strings can't fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("upstream_api_key", "SURFERS_API_KEY")
	mustBind("upstream_base_url", "SURFERS_BASE_URL")
	mustBind("model_name", "SURFERS_MODEL_NAME")
	mustBind("data_dir", "SURFERS_DATA_DIR")
	mustBind("public_base_url", "SURFERS_PUBLIC_BASE_URL")
	mustBind("cors_origins", "SURFERS_CORS_ORIGINS")
	mustBind("trust_proxy", "SURFERS_TRUST_PROXY")
	mustBind("vision_enabled", "SURFERS_VISION_ENABLED")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret material.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.UpstreamAPIKey = maskSecret(a.UpstreamAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
