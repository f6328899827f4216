package memory

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// TaskStatus tracks the working task's lifecycle.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// WorkingTask is the unit of work tracked by working memory.
type WorkingTask struct {
	ID          string         `json:"id"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// TaskContext is the execution state attached to the active task.
type TaskContext struct {
	Status       TaskStatus `json:"status"`
	Progress     float64    `json:"progress"`
	StartTime    time.Time  `json:"start_time"`
	LastActivity time.Time  `json:"last_activity"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ArchivedTask is a finished task with its final context, appended to the history log.
type ArchivedTask struct {
	Task    WorkingTask `json:"task"`
	Context TaskContext `json:"context"`
}

// WorkingMemory is a single-slot task state machine: at most one task is
// active at a time, and finishing it (complete or fail) archives it into an
// append-only history and clears the slot.
type WorkingMemory struct {
	mu      sync.Mutex
	current *WorkingTask
	ctx     TaskContext
	history []ArchivedTask
	now     func() time.Time
	logger  zerolog.Logger
}

// WorkingOption configures a WorkingMemory.
type WorkingOption func(*WorkingMemory)

// WithWorkingClock overrides the time source for tests.
func WithWorkingClock(now func() time.Time) WorkingOption {
	return func(w *WorkingMemory) { w.now = now }
}

// WithWorkingLogger sets the logger.
func WithWorkingLogger(logger zerolog.Logger) WorkingOption {
	return func(w *WorkingMemory) {
		w.logger = logger.With().Str("component", "working_memory").Logger()
	}
}

// NewWorking creates an empty WorkingMemory.
func NewWorking(opts ...WorkingOption) *WorkingMemory {
	w := &WorkingMemory{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetCurrentTask activates a task. Fails if the task shape is invalid or a
// task is already active.
func (w *WorkingMemory) SetCurrentTask(task WorkingTask) error {
	if task.ID == "" {
		return agenterrors.NewValidationError("task", "id is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		return agenterrors.ErrTaskActive
	}

	now := w.now()
	w.current = &task
	w.ctx = TaskContext{
		Status:       StatusInProgress,
		Progress:     0,
		StartTime:    now,
		LastActivity: now,
	}
	w.logger.Debug().Str("task_id", task.ID).Msg("working task set")
	return nil
}

// CurrentTask returns a copy of the active task, or false when the slot is empty.
func (w *WorkingMemory) CurrentTask() (WorkingTask, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return WorkingTask{}, false
	}
	return *w.current, true
}

// TaskContext returns the active task's execution state.
func (w *WorkingMemory) TaskContext() TaskContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

// UpdateProgress sets the active task's progress, clamped to [0, 1].
// Reaching 1.0 completes the task. Errors when no task is active.
func (w *WorkingMemory) UpdateProgress(p float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return agenterrors.ErrNoActiveTask
	}

	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	w.ctx.Progress = p
	w.ctx.LastActivity = w.now()

	if p >= 1.0 {
		w.finishLocked(StatusCompleted, "")
	}
	return nil
}

// CompleteTask archives the active task as completed and clears the slot.
func (w *WorkingMemory) CompleteTask() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return agenterrors.ErrNoActiveTask
	}
	w.ctx.Progress = 1.0
	w.finishLocked(StatusCompleted, "")
	return nil
}

// FailTask archives the active task as failed with the given message and
// clears the slot.
func (w *WorkingMemory) FailTask(errMsg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return agenterrors.ErrNoActiveTask
	}
	w.finishLocked(StatusFailed, errMsg)
	return nil
}

// TaskHistory returns a copy of the archived task log, oldest first.
func (w *WorkingMemory) TaskHistory() []ArchivedTask {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ArchivedTask, len(w.history))
	copy(out, w.history)
	return out
}

// ClearHistory empties the archived task log. The active task is untouched.
func (w *WorkingMemory) ClearHistory() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = nil
}

// finishLocked archives the current task and clears the slot. Caller must hold w.mu.
func (w *WorkingMemory) finishLocked(status TaskStatus, errMsg string) {
	end := w.now()
	w.ctx.Status = status
	w.ctx.EndTime = &end
	w.ctx.Error = errMsg
	w.ctx.LastActivity = end

	w.history = append(w.history, ArchivedTask{Task: *w.current, Context: w.ctx})
	w.logger.Debug().Str("task_id", w.current.ID).Str("status", string(status)).Msg("working task archived")

	w.current = nil
	w.ctx = TaskContext{}
}
