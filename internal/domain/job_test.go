package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	t.Run("ValidJob", func(t *testing.T) {
		ownerID := uuid.New()
		job, err := NewJob(ownerID, "datasets/sales", "req-1")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, ownerID, job.OwnerID)
		assert.Equal(t, "req-1", job.IdempotencyKey)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, 0, job.Progress)
	})

	t.Run("EmptyIdempotencyKeyAllowed", func(t *testing.T) {
		_, err := NewJob(uuid.New(), "datasets/sales", "")
		assert.NoError(t, err)
	})

	t.Run("MissingOwner", func(t *testing.T) {
		_, err := NewJob(uuid.Nil, "datasets/sales", "")
		assert.ErrorIs(t, err, ErrEmptyJobOwnerID)
	})

	t.Run("MissingDatasetRef", func(t *testing.T) {
		_, err := NewJob(uuid.New(), "", "")
		assert.ErrorIs(t, err, ErrEmptyJobDatasetRef)
	})
}

func TestJobValidate(t *testing.T) {
	valid := func(t *testing.T) *Job {
		job, err := NewJob(uuid.New(), "datasets/sales", "")
		require.NoError(t, err)
		return job
	}

	t.Run("InvalidStatus", func(t *testing.T) {
		job := valid(t)
		job.Status = "sideways"
		assert.ErrorIs(t, job.Validate(), ErrInvalidJobStatus)
	})

	t.Run("ProgressOutOfRange", func(t *testing.T) {
		job := valid(t)
		job.Progress = 101
		assert.ErrorIs(t, job.Validate(), ErrInvalidJobProgress)

		job.Progress = -1
		assert.ErrorIs(t, job.Validate(), ErrInvalidJobProgress)
	})
}

func TestJobIsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusPartialSuccess, JobStatusSuccess, JobStatusFailed, JobStatusCancelled}
	live := []JobStatus{JobStatusPending, JobStatusRunning}

	for _, status := range terminal {
		assert.True(t, IsTerminalJobStatus(status), "%s should be terminal", status)
	}
	for _, status := range live {
		assert.False(t, IsTerminalJobStatus(status), "%s should not be terminal", status)
	}
}
