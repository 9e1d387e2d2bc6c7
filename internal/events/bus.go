package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/store"
)

// Subjects identifies the entity an event is about. At most one field is
// the primary subject; ancestors the bus can resolve are filled in on the
// persisted row and the broadcast envelope.
type Subjects struct {
	JobID         *uuid.UUID
	RenderTaskID  *uuid.UUID
	CaptionTaskID *uuid.UUID
}

// JobSubject returns Subjects referencing a job directly.
func JobSubject(id uuid.UUID) Subjects {
	return Subjects{JobID: &id}
}

// TaskSubject returns Subjects referencing a render task.
func TaskSubject(id uuid.UUID) Subjects {
	return Subjects{RenderTaskID: &id}
}

// CaptionSubject returns Subjects referencing a caption task.
func CaptionSubject(id uuid.UUID) Subjects {
	return Subjects{CaptionTaskID: &id}
}

// EmitOption customizes an emitted event.
type EmitOption func(*emitOptions)

type emitOptions struct {
	correlationID uuid.UUID
	progress      *int
	payload       any
}

// WithCorrelationID threads an existing correlation id through the event
// instead of generating a fresh one.
func WithCorrelationID(id uuid.UUID) EmitOption {
	return func(o *emitOptions) {
		o.correlationID = id
	}
}

// WithProgress attaches a progress value (0-100) to the event.
func WithProgress(progress int) EmitOption {
	return func(o *emitOptions) {
		o.progress = &progress
	}
}

// WithPayload attaches structured diagnostic data to the event. The value
// is JSON-marshalled into the envelope's payload field.
func WithPayload(payload any) EmitOption {
	return func(o *emitOptions) {
		o.payload = payload
	}
}

// Bus is the single write path for all state transitions. Emit appends one
// immutable audit row, applies the status-transition table to the primary
// subject, and publishes the envelope to the owning job's broadcast topic.
type Bus struct {
	jobs      store.JobStore
	tasks     store.RenderTaskStore
	captions  store.CaptionTaskStore
	eventLog  store.EventLogStore
	publisher Publisher
	logger    *slog.Logger
}

// NewBus creates a Bus over the given stores and broadcast transport.
// The publisher may be nil, in which case events are persisted but not
// broadcast.
func NewBus(
	jobs store.JobStore,
	tasks store.RenderTaskStore,
	captions store.CaptionTaskStore,
	eventLog store.EventLogStore,
	publisher Publisher,
	logger *slog.Logger,
) *Bus {
	return &Bus{
		jobs:      jobs,
		tasks:     tasks,
		captions:  captions,
		eventLog:  eventLog,
		publisher: publisher,
		logger:    logger.With("component", "event_bus"),
	}
}

// Emit writes one event. The audit row is always appended, even when the
// subject entity no longer exists; status transitions for missing entities
// are silent no-ops. Returns an error only on infrastructure failure
// (the append itself, or a status write that fails for a reason other
// than the entity being gone).
func (b *Bus) Emit(
	ctx context.Context,
	subjects Subjects,
	eventType Type,
	level Level,
	message string,
	opts ...EmitOption,
) error {
	o := emitOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.correlationID == uuid.Nil {
		o.correlationID = uuid.New()
	}

	jobID, renderTaskID, captionTaskID := b.resolve(ctx, subjects)

	entityType, entityID := primarySubject(subjects, jobID)

	var payload json.RawMessage
	if o.payload != nil {
		raw, err := json.Marshal(o.payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		payload = raw
	}

	row := &domain.EventLog{
		ID:            uuid.New(),
		JobID:         jobID,
		RenderTaskID:  renderTaskID,
		CaptionTaskID: captionTaskID,
		EventType:     string(eventType),
		Level:         string(level),
		Message:       message,
		Progress:      o.progress,
		Payload:       payload,
		CorrelationID: o.correlationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := b.eventLog.Append(ctx, row); err != nil {
		return fmt.Errorf("failed to append event log row: %w", err)
	}

	if err := b.applyTransition(ctx, subjects, jobID, eventType, o.progress); err != nil {
		return err
	}

	if jobID != nil && b.publisher != nil {
		event := Event{
			ID:            row.ID,
			JobID:         jobID,
			EntityType:    entityType,
			EntityID:      entityID,
			EventType:     eventType,
			Level:         level,
			Progress:      o.progress,
			Message:       message,
			Payload:       payload,
			CorrelationID: o.correlationID,
			CreatedAt:     row.CreatedAt,
		}
		if err := b.publisher.Publish(ctx, jobID.String(), event); err != nil {
			// Broadcast is best-effort; durability comes from the log.
			b.logger.Warn("failed to publish event to broadcast topic",
				"job_id", jobID,
				"event_type", eventType,
				"error", err)
		}
	}

	return nil
}

// resolve walks caption task -> render task -> job so the notification
// target can be derived from any subject. Missing intermediate entities
// are tolerated; resolution just stops there.
func (b *Bus) resolve(ctx context.Context, subjects Subjects) (jobID, renderTaskID, captionTaskID *uuid.UUID) {
	jobID = subjects.JobID
	renderTaskID = subjects.RenderTaskID
	captionTaskID = subjects.CaptionTaskID

	if captionTaskID != nil && renderTaskID == nil {
		caption, err := b.captions.GetByID(ctx, *captionTaskID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				b.logger.Warn("failed to resolve caption task",
					"caption_task_id", captionTaskID, "error", err)
			}
		} else {
			renderTaskID = &caption.RenderTaskID
		}
	}

	if renderTaskID != nil && jobID == nil {
		task, err := b.tasks.GetByID(ctx, *renderTaskID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				b.logger.Warn("failed to resolve render task",
					"render_task_id", renderTaskID, "error", err)
			}
		} else {
			jobID = &task.JobID
		}
	}

	return jobID, renderTaskID, captionTaskID
}

// primarySubject picks the most specific entity the event is about.
func primarySubject(subjects Subjects, jobID *uuid.UUID) (EntityType, uuid.UUID) {
	switch {
	case subjects.CaptionTaskID != nil:
		return EntityCaptionTask, *subjects.CaptionTaskID
	case subjects.RenderTaskID != nil:
		return EntityRenderTask, *subjects.RenderTaskID
	case subjects.JobID != nil:
		return EntityJob, *subjects.JobID
	case jobID != nil:
		return EntityJob, *jobID
	default:
		return "", uuid.Nil
	}
}

// applyTransition applies the status-transition table to the primary
// subject. Event types with no mapping (retry, job_status_changed,
// warnings, deletions) only produce the audit row.
func (b *Bus) applyTransition(ctx context.Context, subjects Subjects, jobID *uuid.UUID, eventType Type, progress *int) error {
	switch {
	case subjects.CaptionTaskID != nil:
		if err := b.applyCaptionTransition(ctx, *subjects.CaptionTaskID, eventType); err != nil {
			return err
		}
	case subjects.RenderTaskID != nil:
		if err := b.applyTaskTransition(ctx, *subjects.RenderTaskID, eventType, progress); err != nil {
			return err
		}
	case subjects.JobID != nil:
		if err := b.applyJobTransition(ctx, *subjects.JobID, eventType); err != nil {
			return err
		}
	}

	// A validation error anywhere fails the owning job directly.
	if eventType == TypeValidationError && subjects.JobID == nil && jobID != nil {
		if err := b.tolerate(b.jobs.UpdateStatus(ctx, *jobID, domain.JobStatusFailed, 0)); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bus) applyTaskTransition(ctx context.Context, id uuid.UUID, eventType Type, progress *int) error {
	switch {
	case eventType == TypeStart, eventType == TypeProgress:
		if err := b.tolerate(b.tasks.UpdateStatus(ctx, id, domain.TaskStatusRunning)); err != nil {
			return err
		}
		if progress != nil {
			return b.tolerate(b.tasks.UpdateProgress(ctx, id, *progress))
		}
		return nil
	case eventType == TypeDone:
		if err := b.tolerate(b.tasks.UpdateStatus(ctx, id, domain.TaskStatusSuccess)); err != nil {
			return err
		}
		return b.tolerate(b.tasks.UpdateProgress(ctx, id, 100))
	case eventType == TypeCancelled:
		return b.tolerate(b.tasks.UpdateStatus(ctx, id, domain.TaskStatusCancelled))
	case IsErrorType(eventType):
		return b.tolerate(b.tasks.UpdateStatus(ctx, id, domain.TaskStatusFailed))
	}
	return nil
}

func (b *Bus) applyCaptionTransition(ctx context.Context, id uuid.UUID, eventType Type) error {
	switch {
	case eventType == TypeStart, eventType == TypeProgress:
		return b.tolerate(b.captions.UpdateStatus(ctx, id, domain.TaskStatusRunning))
	case eventType == TypeDone:
		return b.tolerate(b.captions.UpdateStatus(ctx, id, domain.TaskStatusSuccess))
	case eventType == TypeCancelled:
		return b.tolerate(b.captions.UpdateStatus(ctx, id, domain.TaskStatusCancelled))
	case IsErrorType(eventType):
		return b.tolerate(b.captions.UpdateStatus(ctx, id, domain.TaskStatusFailed))
	}
	return nil
}

func (b *Bus) applyJobTransition(ctx context.Context, id uuid.UUID, eventType Type) error {
	switch eventType {
	case TypeStart:
		return b.tolerate(b.jobs.UpdateStatus(ctx, id, domain.JobStatusRunning, 0))
	case TypeValidationError:
		return b.tolerate(b.jobs.UpdateStatus(ctx, id, domain.JobStatusFailed, 0))
	}
	// The job's other status changes belong to the aggregator.
	return nil
}

// tolerate swallows not-found errors: the log row is still written for an
// entity that has since been deleted, but there is no status to update.
func (b *Bus) tolerate(err error) error {
	if err == nil || store.IsNotFoundError(err) {
		return nil
	}
	return err
}
