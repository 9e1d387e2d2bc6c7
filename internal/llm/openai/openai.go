// Package openai implements the llm.Provider contract against the OpenAI
// chat completions REST API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/plotforge/plotforge-api/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider calls the chat completions endpoint with a plain HTTP client.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewProvider creates an OpenAI provider. An empty baseURL uses the
// public API endpoint.
func NewProvider(apiKey, baseURL, model string, logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("openai model name cannot be empty")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
		logger:  logger.With("component", "openai_provider", "model", model),
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Model() string { return p.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt as a single user message and returns the
// first choice's content.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", llm.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.WarnContext(ctx, "OpenAI API call failed",
			"status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", llm.ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no choices returned", llm.ErrInvalidResponse)
	}

	return parsed.Choices[0].Message.Content, nil
}

var _ llm.Provider = (*Provider)(nil)
