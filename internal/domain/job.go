package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a render job
type JobStatus string

// Possible job status values
const (
	JobStatusPending        JobStatus = "pending"
	JobStatusRunning        JobStatus = "running"
	JobStatusPartialSuccess JobStatus = "partial_success"
	JobStatusSuccess        JobStatus = "success"
	JobStatusFailed         JobStatus = "failed"
	JobStatusCancelled      JobStatus = "cancelled"
)

// Common validation errors for Job
var (
	ErrEmptyJobID         = errors.New("job ID cannot be empty")
	ErrEmptyJobOwnerID    = errors.New("job owner ID cannot be empty")
	ErrEmptyJobDatasetRef = errors.New("job dataset reference cannot be empty")
	ErrInvalidJobStatus   = errors.New("invalid job status")
	ErrInvalidJobProgress = errors.New("job progress must be between 0 and 100")
)

// Job is the top-level unit of work: one submission that fans out into
// one or more render tasks. Its status and progress are derived from its
// children and are only recomputed under an exclusive lock.
type Job struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	DatasetRef     string    `json:"dataset_ref"`
	Status         JobStatus `json:"status"`
	Progress       int       `json:"progress"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewJob creates a new Job in pending state with a fresh ID.
// The idempotency key may be empty; when present it is unique per owner.
// Returns an error if validation fails.
func NewJob(ownerID uuid.UUID, datasetRef, idempotencyKey string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		IdempotencyKey: idempotencyKey,
		DatasetRef:     datasetRef,
		Status:         JobStatusPending,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.OwnerID == uuid.Nil {
		return ErrEmptyJobOwnerID
	}

	if j.DatasetRef == "" {
		return ErrEmptyJobDatasetRef
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if j.Progress < 0 || j.Progress > 100 {
		return ErrInvalidJobProgress
	}

	return nil
}

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return IsTerminalJobStatus(j.Status)
}

// IsTerminalJobStatus reports whether the given status is final.
func IsTerminalJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPartialSuccess, JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidJobStatus checks if the provided status is a recognized job status.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending,
		JobStatusRunning,
		JobStatusPartialSuccess,
		JobStatusSuccess,
		JobStatusFailed,
		JobStatusCancelled:
		return true
	default:
		return false
	}
}
