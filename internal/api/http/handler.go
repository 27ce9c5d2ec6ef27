package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/media-downloader/internal/capability"
	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/events"
	"github.com/veranemoloko/media-downloader/internal/metrics"
	"github.com/veranemoloko/media-downloader/internal/service"
	"github.com/veranemoloko/media-downloader/internal/validation"
)

const (
	defaultHeartbeat = 15 * time.Second

	usageText     = "Use /download?url=<YOUTUBE_URL>"
	exhaustedMsg  = "All methods failed to stream."
	exhaustedHint = "Make sure yt-dlp and ffmpeg are installed and available on PATH; check server logs."
)

// OrchestratorI runs the capability fallback chain for a request.
type OrchestratorI interface {
	Prepare(ctx context.Context, in service.ServeInput) (capability.Request, error)
	Serve(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error)
}

// TaskServiceI defines the detached task operations used by the handlers.
type TaskServiceI interface {
	StartTask(ctx context.Context, ref, title, format string) (string, error)
	GetTask(ctx context.Context, id string) (domain.TaskResponse, error)
	Subscribe(id string) *events.Subscription
	WaitTerminal(ctx context.Context, id string) (domain.Task, error)
	TakeOutput(id string) (domain.Task, error)
	DiscardOutput(id string)
}

// FileServer streams a stored file and deletes it afterwards.
type FileServer interface {
	ServeAndRemove(w http.ResponseWriter, path, downloadName, contentType string) (int64, error)
}

// Handler serves the download and task endpoints.
type Handler struct {
	orchestrator OrchestratorI
	tasks        TaskServiceI
	files        FileServer
	validator    *validator.Validate
	heartbeat    time.Duration
	logger       *slog.Logger
}

// NewHandler creates a Handler. A non-positive heartbeat falls back to 15s.
func NewHandler(orchestrator OrchestratorI, tasks TaskServiceI, files FileServer, heartbeat time.Duration, logger *slog.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		orchestrator: orchestrator,
		tasks:        tasks,
		files:        files,
		validator:    validation.New(),
		heartbeat:    heartbeat,
		logger:       logger,
	}
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(usageText))
}

// Download handles GET /download?url=&quality=&audio=.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' param.")
		return
	}

	in := service.ServeInput{
		RawURL:    raw,
		Quality:   parseQuality(q.Get("quality")),
		AudioOnly: parseBool(q.Get("audio")),
	}

	sink := capability.NewResponseSink(w)
	out, err := h.orchestrator.Serve(r.Context(), in, sink)
	switch {
	case errors.Is(err, errpkg.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Couldn't extract a valid YouTube video ID/URL from the input.")
		return
	case errors.Is(err, errpkg.ErrPartialStream) || (err != nil && sink.Committed()):
		h.logger.Error("stream aborted", "error", err, "written", sink.Written())
		panic(http.ErrAbortHandler)
	case err != nil:
		if r.Context().Err() != nil {
			h.logger.Info("client went away before any method succeeded", "error", err)
			return
		}
		h.logger.Error("all methods failed", "url", raw, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": exhaustedMsg,
			"hint":  exhaustedHint,
		})
		return
	}

	if out.TaskID != "" {
		h.deliverTask(r, sink, out.TaskID)
		return
	}
	metrics.ServedBytes.Add(float64(sink.Written()))
	h.logger.Info("download served", "capability", out.Capability, "bytes", sink.Written())
}

// deliverTask waits for a detached task started by /download and streams its
// file. If the client leaves first the task keeps running and its output is
// discarded once it ends.
func (h *Handler) deliverTask(r *http.Request, sink *capability.ResponseSink, taskID string) {
	sink.Header().Set("X-Task-Id", taskID)
	logger := h.logger.With("task_id", taskID)

	task, err := h.tasks.WaitTerminal(r.Context(), taskID)
	if err != nil {
		logger.Info("client left while task was running", "error", err)
		h.tasks.DiscardOutput(taskID)
		return
	}

	if task.Status != domain.TaskStatusFinished {
		logger.Warn("detached task did not finish", "status", task.Status, "message", task.Message)
		writeJSON(sink, http.StatusInternalServerError, map[string]string{
			"error":   exhaustedMsg,
			"hint":    exhaustedHint,
			"taskId":  taskID,
			"message": task.Message,
		})
		return
	}

	h.serveOutput(sink, taskID)
}

// StartTask handles POST /tasks/start.
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.StartTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	prepared, err := h.orchestrator.Prepare(ctx, service.ServeInput{
		RawURL:    req.URL,
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL/ID")
		return
	}

	taskID, err := h.tasks.StartTask(ctx, prepared.Ref, prepared.Title, prepared.Format)
	if err != nil {
		h.logger.Error("failed to start task", "task_id", taskID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "failed to start task",
			"message": err.Error(),
			"taskId":  taskID,
		})
		return
	}

	h.logger.Info("task started", "task_id", taskID, "ref", prepared.Ref)
	writeJSON(w, http.StatusOK, domain.StartTaskResponse{TaskID: taskID})
}

// GetTask handles GET /tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.tasks.GetTask(r.Context(), id)
	if errors.Is(err, errpkg.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "Unknown taskId")
		return
	}
	if err != nil {
		h.logger.Error("failed to get task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// TaskFile handles GET /tasks/{id}/file. The file is removed after transfer,
// so it can be fetched once.
func (h *Handler) TaskFile(w http.ResponseWriter, r *http.Request) {
	h.serveOutput(w, chi.URLParam(r, "id"))
}

func (h *Handler) serveOutput(w http.ResponseWriter, id string) {
	task, err := h.tasks.TakeOutput(id)
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Unknown taskId")
		return
	case errors.Is(err, errpkg.ErrTaskNotReady):
		writeError(w, http.StatusConflict, "task output not available")
		return
	case err != nil:
		h.logger.Error("failed to claim task output", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	n, err := h.files.ServeAndRemove(w, task.OutputPath, task.Filename, "")
	metrics.ServedBytes.Add(float64(n))
	if err != nil {
		h.logger.Warn("task file transfer incomplete", "task_id", id, "path", task.OutputPath, "bytes", n, "error", err)
		if n == 0 && !committed(w) {
			writeError(w, http.StatusInternalServerError, "failed to read task output")
		}
		return
	}
	h.logger.Info("task file served", "task_id", id, "bytes", n)
}

func committed(w http.ResponseWriter) bool {
	if s, ok := w.(capability.Sink); ok {
		return s.Committed()
	}
	return false
}

func parseQuality(s string) int {
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return q
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	for _, fe := range verrs {
		switch {
		case fe.Field() == "URL" && fe.Tag() == "required":
			return "Missing url"
		case fe.Field() == "URL":
			return "Invalid YouTube URL/ID"
		case fe.Field() == "Quality":
			return "quality must be one of 360, 720, 1080"
		}
	}
	return verrs.Error()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
