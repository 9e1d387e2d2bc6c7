// Package gemini implements the llm.Provider contract using Google's
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/plotforge/plotforge-api/internal/llm"
)

// Provider calls the Gemini API through the genai client.
type Provider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewProvider creates a Gemini provider for the given API key and model.
func NewProvider(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("gemini model name cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_provider", "model", model),
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Model() string { return p.model }

// Generate sends the prompt and returns the concatenated response text.
// Network/quota failures surface as ErrProviderUnavailable; empty or
// blocked responses as ErrInvalidResponse.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		p.logger.WarnContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", llm.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", llm.ErrInvalidResponse)
	}

	return text, nil
}

var _ llm.Provider = (*Provider)(nil)
