package domain

import (
	"time"
)

// StartTaskRequest represents the request body for POST /tasks/start.
type StartTaskRequest struct {
	URL       string `json:"url" validate:"required,media_ref"`
	Quality   int    `json:"quality" validate:"omitempty,oneof=360 720 1080"`
	AudioOnly bool   `json:"audioOnly"`
}

// StartTaskResponse is returned once the detached task was spawned.
type StartTaskResponse struct {
	TaskID string `json:"taskId"`
}

// TaskResponse is the polling snapshot of a Task.
type TaskResponse struct {
	TaskID      string     `json:"taskId"`
	Status      TaskStatus `json:"status"`
	Percent     *float64   `json:"percent"`
	Speed       string     `json:"speed"`
	ETA         string     `json:"eta"`
	Message     string     `json:"message"`
	Filename    string     `json:"filename"`
	Size        *int64     `json:"size"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// NewTaskResponse converts a Task into its polling representation.
func NewTaskResponse(t Task) TaskResponse {
	resp := TaskResponse{
		TaskID:   t.ID,
		Status:   t.Status,
		Percent:  t.Percent,
		Speed:    t.Speed,
		ETA:      t.ETA,
		Message:  t.Message,
		Filename: t.Filename,
		Size:     t.Size,
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		resp.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// EventMessage is one server-sent event frame.
type EventMessage struct {
	Type    string        `json:"type"`
	Payload ProgressEvent `json:"payload"`
}
