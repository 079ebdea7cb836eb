package config

import (
	"fmt"
	"os"
)

// LLMConfig configures the chat-completion oracle.
type LLMConfig struct {
	// Provider type. Only "openai" compatible endpoints are supported.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey supports ${VAR} expansion; defaults to OPENAI_API_KEY.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryDelay in seconds.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Temperature == nil {
		// routing is deterministic
		t := 0.0
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 1
	}
}

func (c *LLMConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("unsupported provider %q (supported: openai)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// EmbedderConfig configures the embedding oracle.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Dimension is sent only when non-zero (text-embedding-3 models).
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// BatchSize bounds the number of texts per ingestion request.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-ada-002"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("unsupported provider %q (supported: openai)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Dimension < 0 || c.BatchSize < 0 {
		return fmt.Errorf("dimension and batch_size must be non-negative")
	}
	return nil
}
