package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/events"
	"github.com/veranemoloko/media-downloader/internal/metrics"
	repo "github.com/veranemoloko/media-downloader/internal/repository"
	"github.com/veranemoloko/media-downloader/internal/storage"
	"github.com/veranemoloko/media-downloader/internal/worker"
)

const mirrorTimeout = 2 * time.Second

// Runner spawns detached processes.
type Runner interface {
	Start(job worker.Job) error
	Shutdown(ctx context.Context) error
}

// Mirror keeps a copy of task snapshots outside the process.
type Mirror interface {
	Save(ctx context.Context, task domain.Task) error
	Load(ctx context.Context, id string) (domain.Task, error)
}

// TaskService owns detached tasks: it creates them, spawns their process,
// fans their progress out and hands their output over exactly once.
type TaskService struct {
	tasks  repo.TaskRepo
	hub    *events.Hub
	files  *storage.FileStorage
	runner Runner
	mirror Mirror
	logger *slog.Logger
}

// NewTaskService creates a TaskService running ytdlpPath for each task.
// mirror may be nil.
func NewTaskService(tasks repo.TaskRepo, files *storage.FileStorage, ytdlpPath string, mirror Mirror, logger *slog.Logger) *TaskService {
	s := &TaskService{
		tasks:  tasks,
		hub:    events.NewHub(tasks.Snapshot),
		files:  files,
		mirror: mirror,
		logger: logger,
	}
	s.runner = worker.NewYtDlpRunner(ytdlpPath, tasks, files, s, logger)
	return s
}

// StartTask creates a task writing into the storage root and spawns yt-dlp
// for it. The returned id is valid even when spawning failed, in which case
// the task is already in the error state.
func (s *TaskService) StartTask(ctx context.Context, ref, title, format string) (string, error) {
	outPath := s.files.StoragePath(title, "mp4")
	task := s.tasks.Create(filepath.Base(outPath), outPath)
	metrics.TasksStarted.Inc()

	s.logger.Info("task created", "task_id", task.ID, "ref", ref, "path", outPath)
	s.Notify(task.ID)

	if err := s.runner.Start(worker.Job{
		TaskID:  task.ID,
		Ref:     ref,
		Format:  format,
		OutPath: outPath,
	}); err != nil {
		return task.ID, fmt.Errorf("start task %s: %w", task.ID, err)
	}

	return task.ID, nil
}

// GetTask returns the polling view of a task, falling back to the mirror
// for tasks this process no longer tracks.
func (s *TaskService) GetTask(ctx context.Context, id string) (domain.TaskResponse, error) {
	task, err := s.tasks.Get(id)
	if err == nil {
		return domain.NewTaskResponse(task), nil
	}

	if s.mirror != nil {
		mirrored, merr := s.mirror.Load(ctx, id)
		if merr == nil {
			return domain.NewTaskResponse(mirrored), nil
		}
		if !errors.Is(merr, errpkg.ErrTaskNotFound) {
			s.logger.Warn("failed to load task from mirror", "task_id", id, "error", merr)
		}
	}

	return domain.TaskResponse{}, errpkg.ErrTaskNotFound
}

// Subscribe opens a live event stream for id. The first event is the
// current snapshot, or status unknown for ids that do not exist.
func (s *TaskService) Subscribe(id string) *events.Subscription {
	return s.hub.Subscribe(id)
}

// Notify publishes the current state of a task. It runs on every change,
// whether or not anyone is subscribed.
func (s *TaskService) Notify(id string) {
	s.hub.Broadcast(id)

	task, err := s.tasks.Get(id)
	if err != nil {
		return
	}

	args := []any{"task_id", id, "status", task.Status, "speed", task.Speed, "eta", task.ETA, "message", task.Message}
	if task.Percent != nil {
		args = append(args, "percent", *task.Percent)
	}
	s.logger.Debug("progress", args...)

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := s.mirror.Save(ctx, task); err != nil {
			s.logger.Warn("failed to mirror task", "task_id", id, "error", err)
		}
	}
}

// WaitTerminal blocks until the task reaches a terminal state or ctx ends.
func (s *TaskService) WaitTerminal(ctx context.Context, id string) (domain.Task, error) {
	sub := s.hub.Subscribe(id)
	defer sub.Close()

	for {
		task, err := s.tasks.Get(id)
		if err != nil {
			return domain.Task{}, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		select {
		case <-sub.C():
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
}

// TakeOutput claims the output of a finished task for one delivery.
// The caller becomes responsible for the file.
func (s *TaskService) TakeOutput(id string) (domain.Task, error) {
	task, err := s.tasks.Get(id)
	if err != nil {
		return domain.Task{}, err
	}
	if task.Status != domain.TaskStatusFinished {
		return domain.Task{}, errpkg.ErrTaskNotReady
	}

	claimed := false
	s.tasks.UpdateCleanup(id, func(t *domain.Task) {
		if !t.Claimed {
			t.Claimed = true
			claimed = true
		}
	})
	if !claimed {
		return domain.Task{}, errpkg.ErrTaskNotReady
	}
	return task, nil
}

// DiscardOutput waits in the background for the task to end and deletes
// its output unless someone else claimed it first.
func (s *TaskService) DiscardOutput(id string) {
	go func() {
		task, err := s.WaitTerminal(context.Background(), id)
		if err != nil || task.Status != domain.TaskStatusFinished {
			return
		}
		if task, err = s.TakeOutput(id); err != nil {
			return
		}
		if err := s.files.Remove(task.OutputPath); err == nil {
			s.logger.Info("discarded output of abandoned task", "task_id", id, "path", task.OutputPath)
		}
	}()
}

// Sweep evicts terminal tasks older than retention and deletes any output
// nobody collected. Returns the number of evicted tasks.
func (s *TaskService) Sweep(retention time.Duration) int {
	removed := s.tasks.Sweep(retention)
	for _, task := range removed {
		if !task.Claimed && task.OutputPath != "" {
			s.files.RemovePartial(task.OutputPath)
		}
		s.logger.Debug("task evicted", "task_id", task.ID, "status", task.Status)
	}
	metrics.TasksSwept.Add(float64(len(removed)))
	return len(removed)
}

// RunJanitor sweeps every interval until ctx ends.
func (s *TaskService) RunJanitor(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(retention); n > 0 {
				s.logger.Info("evicted expired tasks", "count", n)
			}
		}
	}
}

// Shutdown waits for running processes to exit or for ctx to end.
func (s *TaskService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down task service")
	if err := s.runner.Shutdown(ctx); err != nil {
		s.logger.Warn("task service shutdown timed out")
		return err
	}
	s.logger.Info("task service shutdown completed")
	return nil
}
