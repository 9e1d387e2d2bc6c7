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

// PostgresCaptionTaskStore implements the store.CaptionTaskStore interface using PostgreSQL.
type PostgresCaptionTaskStore struct {
	db store.DBTX
}

// NewPostgresCaptionTaskStore creates a new PostgresCaptionTaskStore.
func NewPostgresCaptionTaskStore(db store.DBTX) *PostgresCaptionTaskStore {
	return &PostgresCaptionTaskStore{db: db}
}

// WithTx returns a new CaptionTaskStore bound to the given transaction.
func (s *PostgresCaptionTaskStore) WithTx(tx *sql.Tx) store.CaptionTaskStore {
	return &PostgresCaptionTaskStore{db: tx}
}

const captionTaskColumns = `id, render_task_id, context_text, status, result_text,
	provider, model, error_code, error_message, correlation_id, created_at, updated_at`

// Create saves a new caption task to the store.
func (s *PostgresCaptionTaskStore) Create(ctx context.Context, task *domain.CaptionTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO caption_tasks (id, render_task_id, context_text, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.RenderTaskID,
		task.ContextText,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create caption task",
			"caption_task_id", task.ID,
			"render_task_id", task.RenderTaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a caption task by its unique ID.
func (s *PostgresCaptionTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CaptionTask, error) {
	query := `SELECT ` + captionTaskColumns + ` FROM caption_tasks WHERE id = $1`
	return scanCaptionTask(s.db.QueryRowContext(ctx, query, id))
}

// FindByRenderTaskID retrieves the caption tasks spawned by the given render task.
func (s *PostgresCaptionTaskStore) FindByRenderTaskID(ctx context.Context, renderTaskID uuid.UUID) ([]*domain.CaptionTask, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + captionTaskColumns + ` FROM caption_tasks WHERE render_task_id = $1 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, renderTaskID)
	if err != nil {
		log.Error("failed to query caption tasks",
			"render_task_id", renderTaskID,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.CaptionTask{}
	for rows.Next() {
		task, err := scanCaptionTaskInto(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// UpdateStatus updates the status of a caption task.
func (s *PostgresCaptionTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	query := `UPDATE caption_tasks SET status = $1, updated_at = $2 WHERE id = $3`
	return s.execExpectingRow(ctx, query, status, time.Now().UTC(), id)
}

// Complete records the result text and the provider/model that produced it,
// marking the task successful.
func (s *PostgresCaptionTaskStore) Complete(ctx context.Context, id uuid.UUID, resultText, provider, model string) error {
	query := `
		UPDATE caption_tasks
		SET status = $1, result_text = $2, provider = $3, model = $4, updated_at = $5
		WHERE id = $6
	`
	return s.execExpectingRow(ctx, query, domain.TaskStatusSuccess, resultText, provider, model, time.Now().UTC(), id)
}

// Fail records error fields on the task and marks it failed.
func (s *PostgresCaptionTaskStore) Fail(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	query := `
		UPDATE caption_tasks
		SET status = $1, error_code = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`
	return s.execExpectingRow(ctx, query, domain.TaskStatusFailed, errorCode, errorMessage, time.Now().UTC(), id)
}

func (s *PostgresCaptionTaskStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrCaptionTaskNotFound
	}

	return nil
}

func scanCaptionTask(row *sql.Row) (*domain.CaptionTask, error) {
	task, err := scanCaptionTaskInto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrCaptionTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

func scanCaptionTaskInto(scanner rowScanner) (*domain.CaptionTask, error) {
	var task domain.CaptionTask
	var contextText, resultText, provider, model sql.NullString
	var errorCode, errorMessage sql.NullString
	var correlationID uuid.NullUUID

	err := scanner.Scan(
		&task.ID,
		&task.RenderTaskID,
		&contextText,
		&task.Status,
		&resultText,
		&provider,
		&model,
		&errorCode,
		&errorMessage,
		&correlationID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ContextText = contextText.String
	task.ResultText = resultText.String
	task.Provider = provider.String
	task.Model = model.String
	task.ErrorCode = errorCode.String
	task.ErrorMessage = errorMessage.String
	if correlationID.Valid {
		task.CorrelationID = correlationID.UUID
	}

	return &task, nil
}

var _ store.CaptionTaskStore = (*PostgresCaptionTaskStore)(nil)
