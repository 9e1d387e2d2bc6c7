package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for CaptionTask
var (
	ErrEmptyCaptionID     = errors.New("caption task ID cannot be empty")
	ErrEmptyCaptionTaskID = errors.New("caption task render task ID cannot be empty")
)

// CaptionTask is a dependent second-stage task spawned after a RenderTask
// succeeds. It produces a free-text description of the rendered chart via
// an LLM provider chain and records which provider/model actually answered.
type CaptionTask struct {
	ID            uuid.UUID  `json:"id"`
	RenderTaskID  uuid.UUID  `json:"render_task_id"`
	ContextText   string     `json:"context_text,omitempty"`
	Status        TaskStatus `json:"status"`
	ResultText    string     `json:"result_text,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Model         string     `json:"model,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CorrelationID uuid.UUID  `json:"correlation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewCaptionTask creates a new pending CaptionTask for the given render task.
// Returns an error if validation fails.
func NewCaptionTask(renderTaskID uuid.UUID, contextText string) (*CaptionTask, error) {
	now := time.Now().UTC()
	task := &CaptionTask{
		ID:           uuid.New(),
		RenderTaskID: renderTaskID,
		ContextText:  contextText,
		Status:       TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the CaptionTask has valid data.
func (t *CaptionTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyCaptionID
	}

	if t.RenderTaskID == uuid.Nil {
		return ErrEmptyCaptionTaskID
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the caption task has reached a final status.
func (t *CaptionTask) IsTerminal() bool {
	return IsTerminalTaskStatus(t.Status)
}
