// Package config loads application configuration from environment
// variables, failing fast on startup rather than leaving a misconfigured
// server to fail mysteriously later.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting this service reads from its environment.
type Config struct {
	// HTTP server
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:":8080"`
	AllowedOrigins string        `envconfig:"ALLOWED_ORIGINS" default:"*"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"524288000"` // 500 MiB
	ProgressCeil   time.Duration `envconfig:"PROGRESS_STREAM_CEILING" default:"5m"`

	// Session lifecycle
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"1h"`

	// LLM naming provider. The credential is deliberately not validated
	// here — per spec it must fail loudly on first LLM call, not at
	// startup, so a deployment with naming disabled (fallback-only) never
	// needs a credential at all.
	LLMProvider     string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMModel        string        `envconfig:"LLM_MODEL"`
	LLMTimeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`

	// Logging
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
}

// defaultModels mirrors the per-provider default model names this service
// falls back to when LLM_MODEL is unset.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-haiku-20240307",
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.LLMModel == "" {
		model, ok := defaultModels[cfg.LLMProvider]
		if !ok {
			return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
		}
		cfg.LLMModel = model
	}

	return &cfg, nil
}

// AllowedOriginList parses ALLOWED_ORIGINS into the slice go-chi/cors wants.
// A single "*" (the default) allows every origin.
func (c *Config) AllowedOriginList() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// LLMCredential returns the API credential for the configured provider.
func (c *Config) LLMCredential() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return c.OpenAIAPIKey
	}
}
