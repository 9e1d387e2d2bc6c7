package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which kind of entity an event is primarily about.
type EntityType string

// Entity types referenced by events.
const (
	EntityJob         EntityType = "job"
	EntityRenderTask  EntityType = "render_task"
	EntityCaptionTask EntityType = "caption_task"
)

// Type is the event type written to the audit log and broadcast envelope.
type Type string

// Event types. The typed error subtypes map to FAILED the same way the
// generic error does; they exist so the timeline records what actually
// went wrong.
const (
	TypeStart            Type = "start"
	TypeProgress         Type = "progress"
	TypeRetry            Type = "retry"
	TypeDone             Type = "done"
	TypeCancelled        Type = "cancelled"
	TypeError            Type = "error"
	TypeValidationError  Type = "validation_error"
	TypeAlgorithmError   Type = "algorithm_error"
	TypeRenderError      Type = "render_error"
	TypeStorageError     Type = "storage_error"
	TypeProviderError    Type = "provider_error"
	TypeJobStatusChanged Type = "job_status_changed"
	TypeDeleted          Type = "deleted"
	TypeWarning          Type = "warning"
)

// Level is the severity attached to an event.
type Level string

// Event levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is the full envelope published to a job's broadcast topic. The
// persisted EventLog row mirrors this shape plus the server-side created_at
// timestamp and is immutable once written.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	JobID         *uuid.UUID      `json:"job_id,omitempty"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      uuid.UUID       `json:"entity_id"`
	EventType     Type            `json:"event_type"`
	Level         Level           `json:"level"`
	Progress      *int            `json:"progress,omitempty"`
	Message       string          `json:"message"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Publisher is the broadcast transport the bus fans events out through.
// The topic key is the job id as a string. Delivery is best-effort with no
// replay guarantee; reconnecting subscribers re-read the event log instead.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// IsErrorType reports whether the given type is the generic error or one
// of its typed subtypes.
func IsErrorType(t Type) bool {
	switch t {
	case TypeError, TypeValidationError, TypeAlgorithmError, TypeRenderError, TypeStorageError, TypeProviderError:
		return true
	default:
		return false
	}
}
