// Package mock provides the guaranteed-success terminal provider that
// anchors the router's fallback chain, plus a configurable fake for tests.
package mock

import (
	"context"
	"fmt"

	"github.com/plotforge/plotforge-api/internal/llm"
)

// Provider satisfies llm.Provider. With no GenerateFunc set it always
// succeeds with a canned description, which is what makes it a safe
// terminal entry in the router chain.
type Provider struct {
	ProviderName string
	ModelName    string
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

// NewProvider returns a Provider with never-failing defaults.
func NewProvider() *Provider {
	return &Provider{
		ProviderName: "mock",
		ModelName:    "mock-v1",
	}
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock-v1"
	}
	return p.ModelName
}

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, prompt)
	}
	return fmt.Sprintf("Automatically generated description (%d chars of context).", len(prompt)), nil
}

var _ llm.Provider = (*Provider)(nil)
