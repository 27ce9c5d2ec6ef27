package domain

import (
	"time"
)

// MaxDebugLogBytes bounds each captured stream of a failed task.
const MaxDebugLogBytes = 20000

// Task is one detached extraction attempt.
type Task struct {
	ID      string     `json:"id"`
	Status  TaskStatus `json:"status"`
	Percent *float64   `json:"percent"`
	Speed   string     `json:"speed,omitempty"`
	ETA     string     `json:"eta,omitempty"`
	Message string     `json:"message,omitempty"`

	Filename   string `json:"filename,omitempty"`
	OutputPath string `json:"-"`
	Size       *int64 `json:"size"`

	// PID of the external process, set only while the task is active.
	PID int `json:"pid,omitempty"`

	DebugLog *DebugLog `json:"debug,omitempty"`

	// Claimed is set once the output file was handed to a client.
	Claimed bool `json:"-"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// DebugLog keeps the tail of the process output for a failed task.
type DebugLog struct {
	Stderr string `json:"stderr"`
	Stdout string `json:"stdout"`
}

// ProgressEvent is an immutable snapshot of the display fields of a Task.
type ProgressEvent struct {
	Status   TaskStatus `json:"status"`
	Percent  *float64   `json:"percent"`
	Speed    string     `json:"speed"`
	ETA      string     `json:"eta"`
	Message  string     `json:"message"`
	Filename string     `json:"filename"`
	Size     *int64     `json:"size"`
}

// Event builds the broadcast snapshot of t.
func (t *Task) Event() ProgressEvent {
	ev := ProgressEvent{
		Status:   t.Status,
		Speed:    t.Speed,
		ETA:      t.ETA,
		Message:  t.Message,
		Filename: t.Filename,
	}
	if t.Percent != nil {
		p := *t.Percent
		ev.Percent = &p
	}
	if t.Size != nil {
		s := *t.Size
		ev.Size = &s
	}
	return ev
}

// Clone returns a deep copy safe to hand out of the registry.
func (t *Task) Clone() Task {
	c := *t
	if t.Percent != nil {
		p := *t.Percent
		c.Percent = &p
	}
	if t.Size != nil {
		s := *t.Size
		c.Size = &s
	}
	if t.DebugLog != nil {
		d := *t.DebugLog
		c.DebugLog = &d
	}
	return c
}

// UnknownEvent is sent to subscribers of an id the registry does not know.
func UnknownEvent() ProgressEvent {
	var zero float64
	return ProgressEvent{Status: TaskStatusUnknown, Percent: &zero}
}

// Truncate cuts s to at most MaxDebugLogBytes.
func Truncate(s string) string {
	if len(s) <= MaxDebugLogBytes {
		return s
	}
	return s[:MaxDebugLogBytes]
}
