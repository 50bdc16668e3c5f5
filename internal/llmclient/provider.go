package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// naming calls stay short and close to deterministic: a creative title and
// a two-to-three sentence summary need nowhere near the default token
// ceiling, and a low-but-nonzero temperature keeps titles varied without
// wandering.
const (
	namingTemperature = 0.7
	namingMaxTokens   = 300
)

// OpenAIProvider calls the OpenAI chat completions endpoint.
type OpenAIProvider struct {
	APIKey     string
	BaseURL    string // set to https://api.openai.com/v1 by NewOpenAIProvider
	httpClient *http.Client
}

// NewOpenAIProvider builds an OpenAIProvider. An empty apiKey is accepted
// here; Chat rejects it on the first call rather than at startup, matching
// the "fail loudly on first LLM call, not at import" requirement.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		httpClient: &http.Client{},
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one chat-completion request and returns the assistant's raw
// text content.
func (p *OpenAIProvider) Chat(ctx context.Context, prompt string, opts ChatOptions) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqBody, err := json.Marshal(openAIRequest{
		Model: opts.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: namingTemperature,
		MaxTokens:   namingMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("rate limit %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// AnthropicProvider calls the Anthropic messages endpoint.
type AnthropicProvider struct {
	APIKey     string
	BaseURL    string // set to https://api.anthropic.com/v1 by NewAnthropicProvider
	httpClient *http.Client
}

// NewAnthropicProvider builds an AnthropicProvider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		APIKey:     apiKey,
		BaseURL:    "https://api.anthropic.com/v1",
		httpClient: &http.Client{},
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one messages request and returns the assistant's raw text.
func (p *AnthropicProvider) Chat(ctx context.Context, prompt string, opts ChatOptions) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	reqBody, err := json.Marshal(anthropicRequest{
		Model:     opts.Model,
		MaxTokens: namingMaxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: namingTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("rate limit %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic response contained no content blocks")
	}
	return parsed.Content[0].Text, nil
}
