package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
)

// JobStore defines the interface for job data persistence.
// Version: 1.0
type JobStore interface {
	// Create saves a new job to the store.
	// Returns ErrIdempotencyKeyExists if a job already exists for the same
	// (owner, idempotency key) pair.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// GetByIdempotencyKey retrieves the job previously created for the
	// given (owner, key) pair. Returns ErrJobNotFound if none exists.
	GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*domain.Job, error)

	// GetByIDForUpdate retrieves a job and acquires an exclusive row lock
	// for the duration of the enclosing transaction. Only meaningful on a
	// store bound to a transaction via WithTx.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// UpdateStatus updates the status and progress of an existing job.
	// Returns ErrJobNotFound if the job does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, progress int) error

	// Delete removes a job and, through cascade, all of its tasks.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}
