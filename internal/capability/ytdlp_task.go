package capability

import (
	"context"
	"errors"
	"fmt"

	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
)

// TaskStarter creates a detached task and spawns its process.
type TaskStarter interface {
	StartTask(ctx context.Context, ref, title, format string) (string, error)
}

// YtDlpTask starts a detached yt-dlp task into the storage root and returns
// its id without waiting for the download.
type YtDlpTask struct {
	starter TaskStarter
}

// NewYtDlpTask creates the ytdlp-task capability.
func NewYtDlpTask(starter TaskStarter) *YtDlpTask {
	return &YtDlpTask{starter: starter}
}

func (c *YtDlpTask) Name() string { return "ytdlp-task" }

func (c *YtDlpTask) Kind() Kind { return KindDetached }

func (c *YtDlpTask) Invoke(ctx context.Context, req Request, _ Sink) (Result, error) {
	id, err := c.starter.StartTask(ctx, req.Ref, req.Title, req.Format)
	if err != nil {
		if errors.Is(err, errpkg.ErrSpawnFailed) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
	}
	return Result{TaskID: id}, nil
}
