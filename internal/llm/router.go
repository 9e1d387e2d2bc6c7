package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/plotforge/plotforge-api/internal/retry"
)

// Entry pairs a provider with the name it is routed under.
type Entry struct {
	Name     string
	Provider Provider
}

// Hooks are optional callbacks fired during routing. Nil hooks are skipped.
type Hooks struct {
	// OnAttempt fires before each individual provider attempt.
	OnAttempt func(provider string, attempt int)

	// OnFailed fires after each failed attempt.
	OnFailed func(provider string, attempt int, err error)

	// OnSuccess fires once, for the provider that answered.
	OnSuccess func(provider string)

	// OnFallback fires when a provider's attempt budget is exhausted and
	// the router moves to the next entry.
	OnFallback func(from string, err error)
}

// GenerateRequest describes one routed generation call.
type GenerateRequest struct {
	// Prompt is the text prompt sent to providers.
	Prompt string

	// Timeout bounds each individual provider attempt.
	Timeout time.Duration

	// MaxRetries is the per-provider attempt budget. Zero means one attempt.
	MaxRetries int

	// Preferred optionally moves the named entry to the front of the
	// chain for this call. An unknown name keeps the default order.
	Preferred string
}

// Result is the outcome of a routed generation call.
type Result struct {
	Text     string
	Provider string
	Model    string
}

// Router tries an ordered list of providers with per-provider bounded
// retry, falling back to the next entry on exhaustion. The list must end
// in a provider that cannot fail, so generation always returns under
// normal operation.
type Router struct {
	entries []Entry
	hooks   Hooks
	logger  *slog.Logger

	// sleep is swappable in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a Router over the given entries, in order.
func NewRouter(entries []Entry, hooks Hooks, logger *slog.Logger) *Router {
	return &Router{
		entries: entries,
		hooks:   hooks,
		logger:  logger.With("component", "llm_router"),
		sleep:   sleepCtx,
	}
}

// Generate routes the request through the provider chain and returns the
// first successful text plus the provider that produced it. It returns
// ErrRouterExhausted only when the chain is misconfigured without a
// terminal no-fail provider.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	entries := r.ordered(req.Preferred)

	attempts := req.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	backoff := retry.Policy{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}

	var lastErr error
	for _, entry := range entries {
		text, err := r.tryProvider(ctx, entry, req, attempts, backoff)
		if err == nil {
			if r.hooks.OnSuccess != nil {
				r.hooks.OnSuccess(entry.Name)
			}
			return &Result{
				Text:     text,
				Provider: entry.Name,
				Model:    entry.Provider.Model(),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		r.logger.Warn("provider exhausted, falling back",
			"provider", entry.Name,
			"attempts", attempts,
			"error", err)
		if r.hooks.OnFallback != nil {
			r.hooks.OnFallback(entry.Name, err)
		}
	}

	// Reaching here means even the terminal provider failed.
	r.logger.Error("provider chain fully exhausted", "error", lastErr)
	return nil, ErrRouterExhausted
}

// tryProvider runs up to `attempts` calls against one provider with
// 2^attempt second delays between failures.
func (r *Router) tryProvider(ctx context.Context, entry Entry, req GenerateRequest, attempts int, backoff retry.Policy) (string, error) {
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if r.hooks.OnAttempt != nil {
			r.hooks.OnAttempt(entry.Name, attempt)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if req.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		}
		text, err := entry.Provider.Generate(attemptCtx, req.Prompt)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return text, nil
		}
		lastErr = err

		if r.hooks.OnFailed != nil {
			r.hooks.OnFailed(entry.Name, attempt, err)
		}

		if attempt < attempts-1 {
			if serr := r.sleep(ctx, backoff.Delay(attempt)); serr != nil {
				return "", serr
			}
		}
	}

	return "", lastErr
}

// ordered returns the entry list with the preferred entry (if any) moved
// to the front. An unknown preferred name is logged and ignored.
func (r *Router) ordered(preferred string) []Entry {
	if preferred == "" {
		return r.entries
	}

	for i, entry := range r.entries {
		if entry.Name == preferred {
			ordered := make([]Entry, 0, len(r.entries))
			ordered = append(ordered, entry)
			ordered = append(ordered, r.entries[:i]...)
			ordered = append(ordered, r.entries[i+1:]...)
			return ordered
		}
	}

	r.logger.Warn("preferred provider not configured, keeping default order",
		"preferred", preferred)
	return r.entries
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
