package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
)

// EventLogStore defines the interface for the append-only audit log.
// There is deliberately no update or delete operation: rows are immutable
// once written.
// Version: 1.0
type EventLogStore interface {
	// Append inserts one immutable event row.
	Append(ctx context.Context, event *domain.EventLog) error

	// FindByJobID retrieves all events referencing the given job (directly
	// or through an owned task), in creation order.
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.EventLog, error)

	// CountByJobID returns the number of event rows referencing the given job.
	CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error)

	// WithTx returns a new EventLogStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) EventLogStore
}
