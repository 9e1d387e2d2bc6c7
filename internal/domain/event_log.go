package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for EventLog
var (
	ErrEmptyEventID    = errors.New("event ID cannot be empty")
	ErrEmptyEventType  = errors.New("event type cannot be empty")
	ErrEventNoSubject  = errors.New("event must reference at least one subject")
	ErrEmptyEventLevel = errors.New("event level cannot be empty")
)

// EventLog is one immutable audit record. Rows are only ever inserted;
// the current status of an entity is reconstructible by replaying its
// events in creation order, but the authoritative live value is the
// denormalized status field on the entity itself.
//
// At most one of JobID/RenderTaskID/CaptionTaskID is the primary subject;
// ancestor ids are filled in by the bus when resolvable.
type EventLog struct {
	ID            uuid.UUID       `json:"id"`
	JobID         *uuid.UUID      `json:"job_id,omitempty"`
	RenderTaskID  *uuid.UUID      `json:"render_task_id,omitempty"`
	CaptionTaskID *uuid.UUID      `json:"caption_task_id,omitempty"`
	EventType     string          `json:"event_type"`
	Level         string          `json:"level"`
	Message       string          `json:"message"`
	Progress      *int            `json:"progress,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks if the EventLog has valid data.
func (e *EventLog) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEventID
	}

	if e.EventType == "" {
		return ErrEmptyEventType
	}

	if e.Level == "" {
		return ErrEmptyEventLevel
	}

	if e.JobID == nil && e.RenderTaskID == nil && e.CaptionTaskID == nil {
		return ErrEventNoSubject
	}

	return nil
}
