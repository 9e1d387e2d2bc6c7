package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/llm"
	"github.com/plotforge/plotforge-api/internal/store"
)

// CaptionExecutor runs one caption task through the LLM provider chain.
// Like the render executor, it records every outcome as data.
type CaptionExecutor struct {
	captions   store.CaptionTaskStore
	bus        *events.Bus
	router     *llm.Router
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewCaptionExecutor creates a CaptionExecutor. timeout bounds each
// individual provider attempt; maxRetries is the per-provider attempt budget.
func NewCaptionExecutor(
	captions store.CaptionTaskStore,
	bus *events.Bus,
	router *llm.Router,
	timeout time.Duration,
	maxRetries int,
	logger *slog.Logger,
) *CaptionExecutor {
	return &CaptionExecutor{
		captions:   captions,
		bus:        bus,
		router:     router,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger.With("component", "caption_executor"),
	}
}

// Execute runs the caption task with the given id through the router.
func (e *CaptionExecutor) Execute(ctx context.Context, captionID uuid.UUID) {
	log := e.logger.With("caption_task_id", captionID)

	caption, err := e.captions.GetByID(ctx, captionID)
	if err != nil {
		log.Error("failed to load caption task", "error", err)
		return
	}
	if caption.Status != domain.TaskStatusPending {
		log.Debug("skipping caption task not in pending state", "status", caption.Status)
		return
	}

	correlationID := uuid.New()
	e.emit(ctx, captionID, events.TypeStart, events.LevelInfo, "caption generation started",
		events.WithCorrelationID(correlationID))

	result, err := e.router.Generate(ctx, llm.GenerateRequest{
		Prompt:     captionPrompt(caption.ContextText),
		Timeout:    e.timeout,
		MaxRetries: e.maxRetries,
	})
	if err != nil {
		log.Error("caption generation failed", "error", err)
		if failErr := e.captions.Fail(ctx, captionID, domain.ErrorCodeProvider, err.Error()); failErr != nil {
			log.Error("failed to record caption failure", "error", failErr)
		}
		e.emit(ctx, captionID, events.TypeProviderError, events.LevelError, err.Error(),
			events.WithCorrelationID(correlationID))
		return
	}

	if err := e.captions.Complete(ctx, captionID, result.Text, result.Provider, result.Model); err != nil {
		log.Error("failed to record caption result", "error", err)
		return
	}

	e.emit(ctx, captionID, events.TypeDone, events.LevelInfo, "caption generated",
		events.WithCorrelationID(correlationID),
		events.WithPayload(map[string]string{
			"provider": result.Provider,
			"model":    result.Model,
		}))
}

func (e *CaptionExecutor) emit(ctx context.Context, captionID uuid.UUID, eventType events.Type, level events.Level, message string, opts ...events.EmitOption) {
	if err := e.bus.Emit(ctx, events.CaptionSubject(captionID), eventType, level, message, opts...); err != nil {
		e.logger.Error("failed to emit caption event",
			"caption_task_id", captionID,
			"event_type", eventType,
			"error", err)
	}
}

// captionPrompt builds the description prompt from the render context.
func captionPrompt(contextText string) string {
	prompt := "Describe the rendered chart for a reader who cannot see it. " +
		"Summarize the main trend and any notable outliers in two or three sentences."
	if contextText != "" {
		prompt = fmt.Sprintf("%s\n\nChart context:\n%s", prompt, contextText)
	}
	return prompt
}
