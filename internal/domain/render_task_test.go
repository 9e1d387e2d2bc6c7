package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderTask(t *testing.T) {
	t.Run("ValidTask", func(t *testing.T) {
		jobID := uuid.New()
		params := json.RawMessage(`{"bins":10}`)

		task, err := NewRenderTask(jobID, "histogram", "v2", params)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Equal(t, jobID, task.JobID)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Equal(t, int64(1), task.ExecutionToken, "a new task starts on its first execution token")
		assert.Equal(t, 0, task.Progress)
	})

	t.Run("MissingJobID", func(t *testing.T) {
		_, err := NewRenderTask(uuid.Nil, "histogram", "v1", nil)
		assert.ErrorIs(t, err, ErrEmptyTaskJobID)
	})

	t.Run("MissingAlgorithm", func(t *testing.T) {
		_, err := NewRenderTask(uuid.New(), "", "v1", nil)
		assert.ErrorIs(t, err, ErrEmptyTaskAlgorithm)
	})
}

func TestTaskStatusTerminality(t *testing.T) {
	terminal := []TaskStatus{TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled}
	live := []TaskStatus{TaskStatusPending, TaskStatusRunning}

	for _, status := range terminal {
		assert.True(t, IsTerminalTaskStatus(status), "%s should be terminal", status)
	}
	for _, status := range live {
		assert.False(t, IsTerminalTaskStatus(status), "%s should not be terminal", status)
	}
}

func TestNewCaptionTask(t *testing.T) {
	t.Run("ValidTask", func(t *testing.T) {
		renderTaskID := uuid.New()
		task, err := NewCaptionTask(renderTaskID, "traffic by hour")
		require.NoError(t, err)

		assert.Equal(t, renderTaskID, task.RenderTaskID)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Equal(t, "traffic by hour", task.ContextText)
	})

	t.Run("MissingRenderTaskID", func(t *testing.T) {
		_, err := NewCaptionTask(uuid.Nil, "")
		assert.ErrorIs(t, err, ErrEmptyCaptionTaskID)
	})
}

func TestEventLogValidate(t *testing.T) {
	jobID := uuid.New()

	valid := EventLog{
		ID:        uuid.New(),
		JobID:     &jobID,
		EventType: "start",
		Level:     "info",
	}

	t.Run("Valid", func(t *testing.T) {
		e := valid
		assert.NoError(t, e.Validate())
	})

	t.Run("NoSubject", func(t *testing.T) {
		e := valid
		e.JobID = nil
		assert.ErrorIs(t, e.Validate(), ErrEventNoSubject)
	})

	t.Run("MissingType", func(t *testing.T) {
		e := valid
		e.EventType = ""
		assert.ErrorIs(t, e.Validate(), ErrEmptyEventType)
	})

	t.Run("MissingLevel", func(t *testing.T) {
		e := valid
		e.Level = ""
		assert.ErrorIs(t, e.Validate(), ErrEmptyEventLevel)
	})
}
