package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/media"
	"github.com/veranemoloko/media-downloader/internal/metrics"
	"github.com/veranemoloko/media-downloader/internal/storage"
)

// DownloadFunc runs an external download of ref into outPath.
type DownloadFunc func(ctx context.Context, ref, format, outPath string) error

// YtDlpTemp runs yt-dlp into the temp root and streams the finished file,
// deleting it afterwards. The download is bound to the request context.
type YtDlpTemp struct {
	files    *storage.FileStorage
	download DownloadFunc
	logger   *slog.Logger
}

// NewYtDlpTemp creates the ytdlp-temp capability. A nil download runs the
// yt-dlp binary through go-ytdlp.
func NewYtDlpTemp(binary string, files *storage.FileStorage, download DownloadFunc, logger *slog.Logger) *YtDlpTemp {
	c := &YtDlpTemp{files: files, download: download, logger: logger}
	if c.download == nil {
		c.download = c.ytdlpDownload(binary)
	}
	return c
}

func (c *YtDlpTemp) Name() string { return "ytdlp-temp" }

func (c *YtDlpTemp) Kind() Kind { return KindDirectStream }

func (c *YtDlpTemp) Invoke(ctx context.Context, req Request, sink Sink) (Result, error) {
	outPath := c.files.TempPath(req.Title, "mp4")
	logger := c.logger.With("capability", c.Name(), "path", outPath)

	logger.Info("spawning yt-dlp", "format", req.Format)
	if err := c.download(ctx, req.Ref, req.Format, outPath); err != nil {
		c.files.RemovePartial(outPath)
		return Result{}, failure(sink, fmt.Errorf("yt-dlp: %w", err))
	}

	if !c.files.FileExists(outPath) {
		c.files.RemovePartial(outPath)
		return Result{}, failure(sink, errors.New("yt-dlp did not produce an output file"))
	}

	n, err := c.files.ServeAndRemove(sink, outPath, filepath.Base(outPath), media.ContentTypeFor("mp4"))
	metrics.ServedBytes.Add(float64(n))
	if err != nil {
		return Result{}, failure(sink, err)
	}

	logger.Info("deleted temp file after transfer", "size", humanize.Bytes(uint64(n)))
	return Result{}, nil
}

func (c *YtDlpTemp) ytdlpDownload(binary string) DownloadFunc {
	return func(ctx context.Context, ref, format, outPath string) error {
		dl := ytdlp.New().
			SetExecutable(binary).
			Format(format).
			MergeOutputFormat("mp4").
			NoPlaylist().
			NoWarnings().
			ForceOverwrites().
			Output(outPath)

		dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes <= 0 {
				return
			}
			c.logger.Debug("yt-dlp progress",
				"path", outPath,
				"percent", fmt.Sprintf("%.1f", float64(update.DownloadedBytes)/float64(update.TotalBytes)*100),
				"downloaded", humanize.Bytes(uint64(update.DownloadedBytes)),
				"total", humanize.Bytes(uint64(update.TotalBytes)),
			)
		})

		if _, err := dl.Run(ctx, ref); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
		}
		return nil
	}
}
