package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/platform/logger"
	"github.com/plotforge/plotforge-api/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a new JobStore bound to the given transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

const jobColumns = `id, owner_id, idempotency_key, dataset_ref, status, progress,
	error_code, error_message, created_at, updated_at`

// Create saves a new job. A duplicate (owner, idempotency key) pair maps
// to ErrIdempotencyKeyExists so the caller can return the existing job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (id, owner_id, idempotency_key, dataset_ref, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Empty keys are stored as NULL so the unique constraint only applies
	// to real idempotency keys.
	var key sql.NullString
	if job.IdempotencyKey != "" {
		key = sql.NullString{String: job.IdempotencyKey, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		key,
		job.DatasetRef,
		job.Status,
		job.Progress,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: owner %s", store.ErrIdempotencyKeyExists, job.OwnerID)
		}
		log.Error("failed to create job",
			"job_id", job.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id))
}

// GetByIdempotencyKey retrieves the job for the (owner, key) pair.
func (s *PostgresJobStore) GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1 AND idempotency_key = $2`
	return s.scanJob(s.db.QueryRowContext(ctx, query, ownerID, key))
}

// GetByIDForUpdate retrieves a job with an exclusive row lock. It is only
// meaningful inside a transaction bound via WithTx.
func (s *PostgresJobStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id))
}

// UpdateStatus updates the status and progress of an existing job.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, progress int) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, progress = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, progress, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", id,
			"status", status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// Delete removes a job; its tasks go with it via ON DELETE CASCADE.
func (s *PostgresJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// scanJob scans one job row.
func (s *PostgresJobStore) scanJob(row *sql.Row) (*domain.Job, error) {
	var job domain.Job
	var key sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&key,
		&job.DatasetRef,
		&job.Status,
		&job.Progress,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}

	job.IdempotencyKey = key.String
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	return &job, nil
}

var _ store.JobStore = (*PostgresJobStore)(nil)
