package config

import (
	"fmt"
	"strings"
)

// Validate checks ranges and required fields that apply in every mode.
// Returns a sentinel error (wrapped with detail) on the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxAllowedTokens {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidMaxTokens, c.MaxTokens, MaxAllowedTokens)
	}
	if c.MaxContinuations < 1 || c.MaxContinuations > MaxAllowedContinuations {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidMaxContinuations, c.MaxContinuations, MaxAllowedContinuations)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidDataDir)
	}
	return nil
}

// ValidateServe adds the serve-mode requirements: talking to the upstream
// needs a real API key.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.UpstreamAPIKey) == "" {
		return fmt.Errorf("%w: set SURFERS_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
