package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
)

// TaskRegistry is the in-memory store of detached tasks. All mutations go
// through the registry mutex; readers get copies.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	now   func() time.Time
}

var _ TaskRepo = (*TaskRegistry)(nil)

// NewTaskRegistry creates an empty TaskRegistry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}
}

// Create registers a new task in the starting state and returns a copy of it.
func (r *TaskRegistry) Create(filename, outputPath string) *domain.Task {
	var zero float64
	task := &domain.Task{
		ID:         uuid.NewString(),
		Status:     domain.TaskStatusStarting,
		Percent:    &zero,
		Filename:   filename,
		OutputPath: outputPath,
		StartedAt:  r.now(),
	}

	r.mu.Lock()
	for {
		if _, exists := r.tasks[task.ID]; !exists {
			break
		}
		task.ID = uuid.NewString()
	}
	r.tasks[task.ID] = task
	c := task.Clone()
	r.mu.Unlock()

	return &c
}

// Update applies fn to the task. Status changes that would move the task
// backwards are dropped, and terminal tasks ignore the patch entirely.
// Returns false if the task does not exist.
func (r *TaskRegistry) Update(id string, fn func(*domain.Task)) bool {
	return r.update(id, fn, false)
}

// UpdateCleanup applies fn even to terminal tasks. The status is never
// changed by a cleanup patch.
func (r *TaskRegistry) UpdateCleanup(id string, fn func(*domain.Task)) bool {
	return r.update(id, fn, true)
}

func (r *TaskRegistry) update(id string, fn func(*domain.Task), cleanup bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return false
	}
	if task.Status.IsTerminal() && !cleanup {
		return true
	}

	prev := task.Status
	next := task.Clone()
	fn(&next)
	next.ID = task.ID

	if cleanup || !prev.CanTransition(next.Status) {
		next.Status = prev
	}
	if next.Status.IsTerminal() && !prev.IsTerminal() {
		next.PID = 0
		if next.CompletedAt.IsZero() {
			next.CompletedAt = r.now()
		}
	}

	*task = next
	return true
}

// Get returns a copy of the task or ErrTaskNotFound.
func (r *TaskRegistry) Get(id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Snapshot returns the broadcast view of the task.
func (r *TaskRegistry) Snapshot(id string) (domain.ProgressEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return domain.ProgressEvent{}, false
	}
	return task.Event(), true
}

// Sweep removes terminal tasks that completed more than olderThan ago and
// returns them so the caller can release their files.
func (r *TaskRegistry) Sweep(olderThan time.Duration) []domain.Task {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []domain.Task
	for id, task := range r.tasks {
		if task.Status.IsTerminal() && task.CompletedAt.Before(cutoff) {
			removed = append(removed, task.Clone())
			delete(r.tasks, id)
		}
	}
	return removed
}

// Len returns the number of tracked tasks.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
