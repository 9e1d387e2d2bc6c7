package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/platform/logger"
	"github.com/plotforge/plotforge-api/internal/store"
)

// PostgresEventLogStore implements the store.EventLogStore interface using
// PostgreSQL. The table is append-only; this type exposes no update or
// delete operation.
type PostgresEventLogStore struct {
	db store.DBTX
}

// NewPostgresEventLogStore creates a new PostgresEventLogStore.
func NewPostgresEventLogStore(db store.DBTX) *PostgresEventLogStore {
	return &PostgresEventLogStore{db: db}
}

// WithTx returns a new EventLogStore bound to the given transaction.
func (s *PostgresEventLogStore) WithTx(tx *sql.Tx) store.EventLogStore {
	return &PostgresEventLogStore{db: tx}
}

const eventLogColumns = `id, job_id, render_task_id, caption_task_id, event_type, level,
	message, progress, payload, correlation_id, created_at`

// Append inserts one immutable event row.
func (s *PostgresEventLogStore) Append(ctx context.Context, event *domain.EventLog) error {
	log := logger.FromContext(ctx)

	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO event_logs (id, job_id, render_task_id, caption_task_id, event_type,
			level, message, progress, payload, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.JobID,
		event.RenderTaskID,
		event.CaptionTaskID,
		event.EventType,
		event.Level,
		event.Message,
		event.Progress,
		nullableJSON(event.Payload),
		event.CorrelationID,
		event.CreatedAt,
	)
	if err != nil {
		log.Error("failed to append event log",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err)
		return MapError(err)
	}

	return nil
}

// FindByJobID retrieves all events referencing the given job, either directly
// or through one of its render or caption tasks, in creation order.
func (s *PostgresEventLogStore) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.EventLog, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + eventLogColumns + `
		FROM event_logs
		WHERE job_id = $1
			OR render_task_id IN (SELECT id FROM render_tasks WHERE job_id = $1)
			OR caption_task_id IN (
				SELECT c.id FROM caption_tasks c
				JOIN render_tasks r ON c.render_task_id = r.id
				WHERE r.job_id = $1
			)
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		log.Error("failed to query event logs",
			"job_id", jobID,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := []*domain.EventLog{}
	for rows.Next() {
		var event domain.EventLog
		var payload []byte

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.RenderTaskID,
			&event.CaptionTaskID,
			&event.EventType,
			&event.Level,
			&event.Message,
			&event.Progress,
			&payload,
			&event.CorrelationID,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, MapError(err)
		}

		event.Payload = json.RawMessage(payload)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return events, nil
}

// CountByJobID returns the number of event rows referencing the given job.
func (s *PostgresEventLogStore) CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM event_logs
		WHERE job_id = $1
			OR render_task_id IN (SELECT id FROM render_tasks WHERE job_id = $1)
			OR caption_task_id IN (
				SELECT c.id FROM caption_tasks c
				JOIN render_tasks r ON c.render_task_id = r.id
				WHERE r.job_id = $1
			)
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&count); err != nil {
		return 0, MapError(err)
	}

	return count, nil
}

var _ store.EventLogStore = (*PostgresEventLogStore)(nil)
