package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

func TestSetCurrentTask(t *testing.T) {
	w := NewWorking()

	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1", Description: "decompose request"}))

	task, ok := w.CurrentTask()
	require.True(t, ok)
	assert.Equal(t, "t1", task.ID)

	ctx := w.TaskContext()
	assert.Equal(t, StatusInProgress, ctx.Status)
	assert.Zero(t, ctx.Progress)
}

func TestSetCurrentTask_RejectsSecondActive(t *testing.T) {
	w := NewWorking()

	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))
	err := w.SetCurrentTask(WorkingTask{ID: "t2"})
	assert.ErrorIs(t, err, agenterrors.ErrTaskActive)
}

func TestSetCurrentTask_Validation(t *testing.T) {
	w := NewWorking()
	assert.Error(t, w.SetCurrentTask(WorkingTask{}), "missing id rejected")
}

func TestUpdateProgress_ClampsAndAutoCompletes(t *testing.T) {
	w := NewWorking()
	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))

	require.NoError(t, w.UpdateProgress(-0.5))
	assert.Zero(t, w.TaskContext().Progress)

	require.NoError(t, w.UpdateProgress(0.4))
	assert.InDelta(t, 0.4, w.TaskContext().Progress, 1e-9)

	// Reaching 1.0 completes and clears the slot.
	require.NoError(t, w.UpdateProgress(1.5))
	_, ok := w.CurrentTask()
	assert.False(t, ok)

	hist := w.TaskHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, StatusCompleted, hist[0].Context.Status)
	assert.InDelta(t, 1.0, hist[0].Context.Progress, 1e-9)
}

func TestCompleteTask_Archives(t *testing.T) {
	w := NewWorking()
	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))
	require.NoError(t, w.CompleteTask())

	_, ok := w.CurrentTask()
	assert.False(t, ok)

	hist := w.TaskHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, "t1", hist[0].Task.ID)
	assert.NotNil(t, hist[0].Context.EndTime)
}

func TestFailTask_RecordsError(t *testing.T) {
	w := NewWorking()
	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))
	require.NoError(t, w.FailTask("generator unavailable"))

	hist := w.TaskHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, StatusFailed, hist[0].Context.Status)
	assert.Equal(t, "generator unavailable", hist[0].Context.Error)
}

func TestOperationsWithoutActiveTask_AreErrors(t *testing.T) {
	w := NewWorking()

	assert.ErrorIs(t, w.UpdateProgress(0.5), agenterrors.ErrNoActiveTask)
	assert.ErrorIs(t, w.CompleteTask(), agenterrors.ErrNoActiveTask)
	assert.ErrorIs(t, w.FailTask("x"), agenterrors.ErrNoActiveTask)
}

func TestClearHistory(t *testing.T) {
	w := NewWorking()
	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))
	require.NoError(t, w.CompleteTask())
	require.Len(t, w.TaskHistory(), 1)

	w.ClearHistory()
	assert.Empty(t, w.TaskHistory())
}

func TestHistoryIsAppendOnlyAcrossTasks(t *testing.T) {
	w := NewWorking()

	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t1"}))
	require.NoError(t, w.CompleteTask())
	require.NoError(t, w.SetCurrentTask(WorkingTask{ID: "t2"}))
	require.NoError(t, w.FailTask("boom"))

	hist := w.TaskHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "t1", hist[0].Task.ID)
	assert.Equal(t, "t2", hist[1].Task.ID)
}
