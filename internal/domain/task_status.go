package domain

// TaskStatus represents the current state of a detached Task.
type TaskStatus string

const (
	TaskStatusStarting TaskStatus = "starting"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusFinished TaskStatus = "finished"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusError    TaskStatus = "error"
	TaskStatusUnknown  TaskStatus = "unknown"
)

func (s TaskStatus) String() string {
	return string(s)
}

// IsActive reports whether the external process may still be running.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusStarting || s == TaskStatusRunning
}

// IsTerminal reports whether the task reached a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusFinished || s == TaskStatusFailed || s == TaskStatusError
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic: starting -> running -> (finished | failed | error).
// A task may also go straight from starting to a terminal state when the
// process never came up. Re-applying the current status is allowed.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case TaskStatusStarting:
		return next == TaskStatusRunning || next.IsTerminal()
	case TaskStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}
