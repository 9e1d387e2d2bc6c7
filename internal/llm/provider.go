// Package llm defines the text-generation provider contract and the
// ordered-fallback router that degrades gracefully across providers.
package llm

import (
	"context"
	"errors"
)

// Common errors returned by providers and the router.
var (
	// ErrProviderUnavailable is returned for quota/auth/network failures.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidResponse is returned when a provider answers with
	// something unusable (empty, blocked, malformed).
	ErrInvalidResponse = errors.New("provider returned invalid response")

	// ErrRouterExhausted indicates a misconfigured router: every provider
	// in the chain failed, which cannot happen when the chain ends in the
	// guaranteed no-fail entry.
	ErrRouterExhausted = errors.New("all providers exhausted: router misconfigured without a terminal no-fail provider")
)

// Provider generates text from a prompt. Implementations may fail on
// quota, auth or network problems; the router handles retry and fallback.
type Provider interface {
	// Name returns the provider identifier used in routing and audit records.
	Name() string

	// Model returns the model identifier the provider calls.
	Model() string

	// Generate produces text for the prompt. The context carries the
	// per-attempt timeout.
	Generate(ctx context.Context, prompt string) (string, error)
}
