package repository

import (
	"time"

	"github.com/veranemoloko/media-downloader/internal/domain"
)

// TaskRepo defines the task registry operations used by the services.
type TaskRepo interface {
	Create(filename, outputPath string) *domain.Task
	Update(id string, fn func(*domain.Task)) bool
	UpdateCleanup(id string, fn func(*domain.Task)) bool
	Get(id string) (domain.Task, error)
	Snapshot(id string) (domain.ProgressEvent, bool)
	Sweep(olderThan time.Duration) []domain.Task
}
