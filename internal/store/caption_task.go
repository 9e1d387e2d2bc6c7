package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
)

// CaptionTaskStore defines the interface for caption task persistence.
// Version: 1.0
type CaptionTaskStore interface {
	// Create saves a new caption task to the store.
	Create(ctx context.Context, task *domain.CaptionTask) error

	// GetByID retrieves a caption task by its unique ID.
	// Returns ErrCaptionTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CaptionTask, error)

	// FindByRenderTaskID retrieves the caption tasks spawned by the given
	// render task, ordered by creation time.
	FindByRenderTaskID(ctx context.Context, renderTaskID uuid.UUID) ([]*domain.CaptionTask, error)

	// UpdateStatus updates the status of a caption task.
	// Returns ErrCaptionTaskNotFound if the task does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// Complete records the result text and the provider/model that
	// produced it, marking the task successful.
	Complete(ctx context.Context, id uuid.UUID, resultText, provider, model string) error

	// Fail records error fields on the task and marks it failed.
	Fail(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error

	// WithTx returns a new CaptionTaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CaptionTaskStore
}
