package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/platform/logger"
	"github.com/plotforge/plotforge-api/internal/store"
)

// PostgresRenderTaskStore implements the store.RenderTaskStore interface using PostgreSQL.
type PostgresRenderTaskStore struct {
	db store.DBTX
}

// NewPostgresRenderTaskStore creates a new PostgresRenderTaskStore.
func NewPostgresRenderTaskStore(db store.DBTX) *PostgresRenderTaskStore {
	return &PostgresRenderTaskStore{db: db}
}

// WithTx returns a new RenderTaskStore bound to the given transaction.
func (s *PostgresRenderTaskStore) WithTx(tx *sql.Tx) store.RenderTaskStore {
	return &PostgresRenderTaskStore{db: tx}
}

const renderTaskColumns = `id, job_id, algorithm, algorithm_version, params, status, progress,
	artifacts, result_data, error_code, error_message, correlation_id, execution_token,
	created_at, updated_at`

// Create saves a new render task to the store.
func (s *PostgresRenderTaskStore) Create(ctx context.Context, task *domain.RenderTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	artifacts, err := marshalArtifacts(task.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}

	query := `
		INSERT INTO render_tasks (id, job_id, algorithm, algorithm_version, params, status,
			progress, artifacts, execution_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.JobID,
		task.Algorithm,
		task.AlgorithmVersion,
		nullableJSON(task.Params),
		task.Status,
		task.Progress,
		artifacts,
		task.ExecutionToken,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create render task",
			"task_id", task.ID,
			"job_id", task.JobID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a render task by its unique ID.
func (s *PostgresRenderTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error) {
	query := `SELECT ` + renderTaskColumns + ` FROM render_tasks WHERE id = $1`
	return scanRenderTask(s.db.QueryRowContext(ctx, query, id))
}

// FindByJobID retrieves all render tasks owned by the given job.
func (s *PostgresRenderTaskStore) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	query := `SELECT ` + renderTaskColumns + ` FROM render_tasks WHERE job_id = $1 ORDER BY created_at, id`
	return s.queryTasks(ctx, query, jobID)
}

// FindByJobIDForUpdate retrieves the job's render tasks under exclusive row
// locks. Only meaningful inside a transaction.
func (s *PostgresRenderTaskStore) FindByJobIDForUpdate(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	query := `SELECT ` + renderTaskColumns + ` FROM render_tasks WHERE job_id = $1 ORDER BY created_at, id FOR UPDATE`
	return s.queryTasks(ctx, query, jobID)
}

// FindPendingByJobID retrieves the job's tasks still in pending state.
func (s *PostgresRenderTaskStore) FindPendingByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	query := `SELECT ` + renderTaskColumns + ` FROM render_tasks WHERE job_id = $1 AND status = $2 ORDER BY created_at, id`
	return s.queryTasks(ctx, query, jobID, domain.TaskStatusPending)
}

// UpdateStatus updates the status of a render task without touching progress.
func (s *PostgresRenderTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	query := `UPDATE render_tasks SET status = $1, updated_at = $2 WHERE id = $3`
	return s.execExpectingRow(ctx, query, status, time.Now().UTC(), id)
}

// UpdateProgress updates only the task's own progress field.
func (s *PostgresRenderTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `UPDATE render_tasks SET progress = $1, updated_at = $2 WHERE id = $3`
	return s.execExpectingRow(ctx, query, progress, time.Now().UTC(), id)
}

// CompleteIfCurrent records a terminal outcome only if the stored execution
// token still matches the one the executor loaded. A retry bumps the token,
// so a superseded execution's write affects zero rows and maps to
// ErrStaleExecution instead of clobbering the newer state.
func (s *PostgresRenderTaskStore) CompleteIfCurrent(ctx context.Context, task *domain.RenderTask, executionToken int64) error {
	log := logger.FromContext(ctx)

	artifacts, err := marshalArtifacts(task.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}

	query := `
		UPDATE render_tasks
		SET status = $1, progress = $2, artifacts = $3, result_data = $4,
			error_code = $5, error_message = $6, updated_at = $7
		WHERE id = $8 AND execution_token = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.Progress,
		artifacts,
		nullableJSON(task.ResultData),
		nullableString(task.ErrorCode),
		nullableString(task.ErrorMessage),
		time.Now().UTC(),
		task.ID,
		executionToken,
	)
	if err != nil {
		log.Error("failed to complete render task",
			"task_id", task.ID,
			"status", task.Status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the task is gone or a retry superseded this execution.
		if _, getErr := s.GetByID(ctx, task.ID); getErr != nil {
			return getErr
		}
		return store.ErrStaleExecution
	}

	return nil
}

// ResetForRetry returns a failed or cancelled task to pending state and bumps
// the execution token, invalidating any in-flight writes from the previous
// execution. Returns the updated task.
func (s *PostgresRenderTaskStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error) {
	query := `
		UPDATE render_tasks
		SET status = $1, progress = 0, error_code = NULL, error_message = NULL,
			correlation_id = NULL, execution_token = execution_token + 1, updated_at = $2
		WHERE id = $3
		RETURNING ` + renderTaskColumns

	return scanRenderTask(s.db.QueryRowContext(ctx, query, domain.TaskStatusPending, time.Now().UTC(), id))
}

// SetCorrelationID records the correlation id for the task's current execution.
func (s *PostgresRenderTaskStore) SetCorrelationID(ctx context.Context, id uuid.UUID, correlationID uuid.UUID) error {
	query := `UPDATE render_tasks SET correlation_id = $1, updated_at = $2 WHERE id = $3`
	return s.execExpectingRow(ctx, query, correlationID, time.Now().UTC(), id)
}

// execExpectingRow runs an UPDATE that must affect exactly one task row.
func (s *PostgresRenderTaskStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

func (s *PostgresRenderTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.RenderTask, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query render tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.RenderTask{}
	for rows.Next() {
		task, err := scanRenderTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRenderTask(row *sql.Row) (*domain.RenderTask, error) {
	task, err := scanRenderTaskInto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

func scanRenderTaskRow(rows *sql.Rows) (*domain.RenderTask, error) {
	task, err := scanRenderTaskInto(rows)
	if err != nil {
		return nil, MapError(err)
	}
	return task, nil
}

func scanRenderTaskInto(scanner rowScanner) (*domain.RenderTask, error) {
	var task domain.RenderTask
	var params, artifacts, resultData []byte
	var errorCode, errorMessage sql.NullString
	var correlationID uuid.NullUUID

	err := scanner.Scan(
		&task.ID,
		&task.JobID,
		&task.Algorithm,
		&task.AlgorithmVersion,
		&params,
		&task.Status,
		&task.Progress,
		&artifacts,
		&resultData,
		&errorCode,
		&errorMessage,
		&correlationID,
		&task.ExecutionToken,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Params = json.RawMessage(params)
	task.ResultData = json.RawMessage(resultData)
	task.ErrorCode = errorCode.String
	task.ErrorMessage = errorMessage.String
	if correlationID.Valid {
		task.CorrelationID = correlationID.UUID
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &task.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
		}
	}

	return &task, nil
}

// marshalArtifacts serializes the artifact map, storing nil as SQL NULL.
func marshalArtifacts(artifacts map[string]string) (any, error) {
	if artifacts == nil {
		return nil, nil
	}
	data, err := json.Marshal(artifacts)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// nullableJSON stores empty raw JSON as SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// nullableString stores the empty string as SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ store.RenderTaskStore = (*PostgresRenderTaskStore)(nil)
