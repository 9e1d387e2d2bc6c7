package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a render or caption task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Common validation errors for RenderTask
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskJobID     = errors.New("task job ID cannot be empty")
	ErrEmptyTaskAlgorithm = errors.New("task algorithm cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
)

// RenderTask is one independent unit of chart-rendering work owned by a Job.
// It is mutated only by its own executor and by cancel/retry operations.
// ExecutionToken fences concurrent executions of the same task identity:
// retry bumps it, and a writer whose token no longer matches loses.
type RenderTask struct {
	ID               uuid.UUID         `json:"id"`
	JobID            uuid.UUID         `json:"job_id"`
	Algorithm        string            `json:"algorithm"`
	AlgorithmVersion string            `json:"algorithm_version"`
	Params           json.RawMessage   `json:"params,omitempty"`
	Status           TaskStatus        `json:"status"`
	Progress         int               `json:"progress"`
	Artifacts        map[string]string `json:"artifacts,omitempty"`
	ResultData       json.RawMessage   `json:"result_data,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CorrelationID    uuid.UUID         `json:"correlation_id,omitempty"`
	ExecutionToken   int64             `json:"execution_token"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewRenderTask creates a new pending RenderTask for the given job.
// Returns an error if validation fails.
func NewRenderTask(jobID uuid.UUID, algorithm, algorithmVersion string, params json.RawMessage) (*RenderTask, error) {
	now := time.Now().UTC()
	task := &RenderTask{
		ID:               uuid.New(),
		JobID:            jobID,
		Algorithm:        algorithm,
		AlgorithmVersion: algorithmVersion,
		Params:           params,
		Status:           TaskStatusPending,
		Progress:         0,
		ExecutionToken:   1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the RenderTask has valid data.
func (t *RenderTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.JobID == uuid.Nil {
		return ErrEmptyTaskJobID
	}

	if t.Algorithm == "" {
		return ErrEmptyTaskAlgorithm
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the task has reached a final status.
func (t *RenderTask) IsTerminal() bool {
	return IsTerminalTaskStatus(t.Status)
}

// IsTerminalTaskStatus reports whether the given status is final.
func IsTerminalTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the provided status is a recognized task status.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending,
		TaskStatusRunning,
		TaskStatusSuccess,
		TaskStatusFailed,
		TaskStatusCancelled:
		return true
	default:
		return false
	}
}
