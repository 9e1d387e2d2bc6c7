package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
)

// RenderTaskStore defines the interface for render task persistence.
// Version: 1.0
type RenderTaskStore interface {
	// Create saves a new render task to the store.
	Create(ctx context.Context, task *domain.RenderTask) error

	// GetByID retrieves a render task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error)

	// FindByJobID retrieves all render tasks owned by the given job,
	// ordered by creation time. Returns an empty slice if none exist.
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error)

	// FindByJobIDForUpdate retrieves all render tasks owned by the given
	// job and acquires exclusive row locks on them for the duration of the
	// enclosing transaction. Only meaningful on a store bound to a
	// transaction via WithTx.
	FindByJobIDForUpdate(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error)

	// FindPendingByJobID retrieves the job's tasks still in pending state.
	FindPendingByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error)

	// UpdateStatus updates the status of a render task without touching
	// its progress. Returns ErrTaskNotFound if the task does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// UpdateProgress updates only the task's own progress field. No
	// cross-row lock is required for this single-row write.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// CompleteIfCurrent records a terminal outcome (status, artifacts,
	// result data, error fields) only if the stored execution token still
	// matches the given one. Returns ErrStaleExecution if a retry has
	// superseded this execution since it loaded the task.
	CompleteIfCurrent(ctx context.Context, task *domain.RenderTask, executionToken int64) error

	// ResetForRetry returns a failed or cancelled task to pending state,
	// clearing error fields and correlation id and incrementing the
	// execution token. Returns the updated task.
	ResetForRetry(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error)

	// SetCorrelationID records the correlation id for the task's current execution.
	SetCorrelationID(ctx context.Context, id uuid.UUID, correlationID uuid.UUID) error

	// WithTx returns a new RenderTaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) RenderTaskStore
}
