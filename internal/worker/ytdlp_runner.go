package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/metrics"
	"github.com/veranemoloko/media-downloader/internal/progress"
	repo "github.com/veranemoloko/media-downloader/internal/repository"
	"github.com/veranemoloko/media-downloader/internal/storage"
)

const maxLineSize = 1 << 20

// Notifier is told about every change of a task's observable state.
type Notifier interface {
	Notify(taskID string)
}

// Job describes one detached yt-dlp run.
type Job struct {
	TaskID  string
	Ref     string
	Format  string
	OutPath string
}

// YtDlpRunner spawns yt-dlp for detached tasks and keeps the task registry
// in sync with the process output. Processes are not tied to any request
// and always run to completion.
type YtDlpRunner struct {
	binary   string
	tasks    repo.TaskRepo
	files    *storage.FileStorage
	notifier Notifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewYtDlpRunner creates a runner that executes binary.
func NewYtDlpRunner(binary string, tasks repo.TaskRepo, files *storage.FileStorage, notifier Notifier, logger *slog.Logger) *YtDlpRunner {
	return &YtDlpRunner{
		binary:   binary,
		tasks:    tasks,
		files:    files,
		notifier: notifier,
		logger:   logger,
	}
}

// Args builds the yt-dlp command line for a job.
func Args(ref, format, outPath string) []string {
	return []string{
		ref,
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", outPath,
		"--no-playlist",
		"--no-warnings",
		"--newline",
	}
}

// Start spawns the process and returns once it is running. A spawn failure
// moves the task to the error state and returns ErrSpawnFailed.
func (r *YtDlpRunner) Start(job Job) error {
	logger := r.logger.With("task_id", job.TaskID)

	cmd := exec.Command(r.binary, Args(job.Ref, job.Format, job.OutPath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailed(job.TaskID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailed(job.TaskID, err)
	}

	logger.Info("spawning yt-dlp", "path", job.OutPath, "format", job.Format)
	if err := cmd.Start(); err != nil {
		return r.spawnFailed(job.TaskID, err)
	}

	pid := cmd.Process.Pid
	r.tasks.Update(job.TaskID, func(t *domain.Task) {
		t.PID = pid
		t.Status = domain.TaskStatusRunning
	})
	r.notifier.Notify(job.TaskID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.supervise(cmd, stdout, stderr, job, logger)
	}()

	return nil
}

func (r *YtDlpRunner) spawnFailed(taskID string, err error) error {
	r.tasks.Update(taskID, func(t *domain.Task) {
		t.Status = domain.TaskStatusError
		t.Message = err.Error()
	})
	r.notifier.Notify(taskID)
	metrics.TasksFailed.Inc()
	r.logger.Error("yt-dlp spawn error", "task_id", taskID, "error", err)
	return fmt.Errorf("%w: %v", errpkg.ErrSpawnFailed, err)
}

type outputLine struct {
	stderr bool
	text   string
}

func (r *YtDlpRunner) supervise(cmd *exec.Cmd, stdout, stderr io.Reader, job Job, logger *slog.Logger) {
	lines := make(chan outputLine, 64)
	stdoutBuf := &boundedBuffer{limit: domain.MaxDebugLogBytes}
	stderrBuf := &boundedBuffer{limit: domain.MaxDebugLogBytes}

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, stdoutBuf, false, lines) })
	g.Go(func() error { return pump(stderr, stderrBuf, true, lines) })

	go func() {
		if err := g.Wait(); err != nil {
			logger.Warn("failed to read yt-dlp output", "error", err)
		}
		close(lines)
	}()

	parser := progress.NewParser()
	for line := range lines {
		if !parser.Feed(line.text) {
			continue
		}
		st := parser.State()
		r.tasks.Update(job.TaskID, func(t *domain.Task) {
			if st.Percent != nil {
				t.Percent = st.Percent
			}
			if st.Speed != "" {
				t.Speed = st.Speed
			}
			if st.ETA != "" {
				t.ETA = st.ETA
			}
			if st.Message != "" {
				t.Message = st.Message
			}
		})
		r.notifier.Notify(job.TaskID)
	}

	waitErr := cmd.Wait()
	r.finish(job, waitErr, stdoutBuf.String(), stderrBuf.String(), logger)
}

func (r *YtDlpRunner) finish(job Job, waitErr error, stdout, stderr string, logger *slog.Logger) {
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}

		r.tasks.Update(job.TaskID, func(t *domain.Task) {
			t.Status = domain.TaskStatusFailed
			t.Message = fmt.Sprintf("yt-dlp exit code %d", code)
			t.DebugLog = &domain.DebugLog{
				Stderr: domain.Truncate(stderr),
				Stdout: domain.Truncate(stdout),
			}
		})
		r.notifier.Notify(job.TaskID)
		r.files.RemovePartial(job.OutPath)
		metrics.TasksFailed.Inc()

		logger.Error("yt-dlp failed", "exit_code", code, "error", waitErr)
		if stderr != "" {
			logger.Debug("yt-dlp stderr", "output", stderr)
		}
		return
	}

	size, err := r.files.GetFileSize(job.OutPath)
	if err != nil {
		r.tasks.Update(job.TaskID, func(t *domain.Task) {
			t.Status = domain.TaskStatusFailed
			t.Message = "yt-dlp did not produce an output file"
		})
		r.notifier.Notify(job.TaskID)
		metrics.TasksFailed.Inc()
		logger.Error("output file missing after yt-dlp finished", "path", job.OutPath, "error", err)
		return
	}

	done := float64(100)
	r.tasks.Update(job.TaskID, func(t *domain.Task) {
		t.Status = domain.TaskStatusFinished
		t.Percent = &done
		t.Message = "finished"
		t.Size = &size
		t.CompletedAt = time.Now()
	})
	r.notifier.Notify(job.TaskID)
	metrics.TasksFinished.Inc()

	logger.Info("task finished", "size", humanize.Bytes(uint64(size)), "path", job.OutPath)
}

func pump(rd io.Reader, capture *boundedBuffer, stderr bool, out chan<- outputLine) error {
	sc := bufio.NewScanner(io.TeeReader(rd, capture))
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	sc.Split(progress.ScanLines)
	for sc.Scan() {
		out <- outputLine{stderr: stderr, text: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(capture, rd)
		return err
	}
	return nil
}

// Shutdown waits for running processes to exit or for ctx to end.
func (r *YtDlpRunner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("yt-dlp processes still running at shutdown")
		return ctx.Err()
	}
}

// boundedBuffer keeps the first limit bytes written and discards the rest.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
