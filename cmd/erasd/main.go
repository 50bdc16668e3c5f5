// Command erasd runs the listening-history era API server.
package main

import (
	"fmt"
	"os"

	"github.com/soundtrace/eras-api/internal/config"
	"github.com/soundtrace/eras-api/internal/httpapi"
	"github.com/soundtrace/eras-api/internal/llmclient"
	"github.com/soundtrace/eras-api/internal/logging"
	"github.com/soundtrace/eras-api/internal/pipeline"
	"github.com/soundtrace/eras-api/internal/segment"
	"github.com/soundtrace/eras-api/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Environment: cfg.Environment})

	store := session.NewStore(cfg.SessionTTL)
	defer store.Close()

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("configuring LLM provider: %w", err)
	}
	namer := llmclient.New(provider, llmclient.ChatOptions{Model: cfg.LLMModel, Timeout: cfg.LLMTimeout})

	driver := pipeline.NewDriver(store, namer, segment.DefaultConfig())

	server := httpapi.NewServer(httpapi.Config{
		Addr:            cfg.ListenAddr,
		AllowedOrigins:  cfg.AllowedOriginList(),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		ProgressCeiling: cfg.ProgressCeil,
	}, store, driver)

	return server.Run()
}

// newProvider builds the configured LLM provider. It never validates the
// credential here — per the naming contract, a missing credential must
// fail loudly on the first LLM call, not at startup.
func newProvider(cfg *config.Config) (llmclient.Provider, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return llmclient.NewAnthropicProvider(cfg.LLMCredential()), nil
	case "openai":
		return llmclient.NewOpenAIProvider(cfg.LLMCredential()), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
