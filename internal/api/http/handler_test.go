package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/media-downloader/internal/capability"
	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/events"
	"github.com/veranemoloko/media-downloader/internal/service"
)

type mockOrchestrator struct {
	serve func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error)
}

func (m *mockOrchestrator) Prepare(ctx context.Context, in service.ServeInput) (capability.Request, error) {
	if in.RawURL == "bad" {
		return capability.Request{}, errpkg.ErrInvalidInput
	}
	return capability.Request{Ref: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Title: "clip", Format: "best"}, nil
}

func (m *mockOrchestrator) Serve(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
	return m.serve(ctx, in, sink)
}

type mockTaskService struct {
	mu        sync.Mutex
	hub       *events.Hub
	tasks     map[string]domain.Task
	startErr  error
	waitErr   error
	claimed   map[string]bool
	discarded []string
	started   []string
}

func newMockTaskService() *mockTaskService {
	m := &mockTaskService{
		tasks:   make(map[string]domain.Task),
		claimed: make(map[string]bool),
	}
	m.hub = events.NewHub(func(id string) (domain.ProgressEvent, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		task, ok := m.tasks[id]
		if !ok {
			return domain.ProgressEvent{}, false
		}
		return task.Event(), true
	})
	return m
}

func (m *mockTaskService) StartTask(ctx context.Context, ref, title, format string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, ref)
	return "task-1", m.startErr
}

func (m *mockTaskService) GetTask(ctx context.Context, id string) (domain.TaskResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.TaskResponse{}, errpkg.ErrTaskNotFound
	}
	return domain.NewTaskResponse(task), nil
}

func (m *mockTaskService) Subscribe(id string) *events.Subscription {
	return m.hub.Subscribe(id)
}

func (m *mockTaskService) WaitTerminal(ctx context.Context, id string) (domain.Task, error) {
	if m.waitErr != nil {
		return domain.Task{}, m.waitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockTaskService) TakeOutput(id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	if task.Status != domain.TaskStatusFinished || m.claimed[id] {
		return domain.Task{}, errpkg.ErrTaskNotReady
	}
	m.claimed[id] = true
	return task, nil
}

func (m *mockTaskService) DiscardOutput(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded = append(m.discarded, id)
}

type mockFiles struct {
	served []string
}

func (m *mockFiles) ServeAndRemove(w http.ResponseWriter, path, downloadName, contentType string) (int64, error) {
	m.served = append(m.served, path)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	w.WriteHeader(http.StatusOK)
	n, err := io.WriteString(w, "file:"+path)
	return int64(n), err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(orch *mockOrchestrator, tasks *mockTaskService, files *mockFiles) *Handler {
	if orch == nil {
		orch = &mockOrchestrator{}
	}
	return NewHandler(orch, tasks, files, time.Second, newTestLogger())
}

func decodeBody(t *testing.T, body io.Reader) map[string]string {
	t.Helper()
	var data map[string]string
	require.NoError(t, json.NewDecoder(body).Decode(&data))
	return data
}

func TestHandler_Index(t *testing.T) {
	h := newTestHandler(nil, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	NewRouter(h, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Use /download?url=<YOUTUBE_URL>", w.Body.String())
}

func TestHandler_Download_MissingURL(t *testing.T) {
	h := newTestHandler(nil, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing 'url' param.", decodeBody(t, w.Body)["error"])
}

func TestHandler_Download_InvalidURL(t *testing.T) {
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		return service.Outcome{}, fmt.Errorf("%w: %q", errpkg.ErrInvalidInput, in.RawURL)
	}}
	h := newTestHandler(orch, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=nonsense", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w.Body)["error"], "valid YouTube video ID")
}

func TestHandler_Download_Streams(t *testing.T) {
	var got service.ServeInput
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		got = in
		sink.Header().Set("Content-Type", "video/mp4")
		_, err := sink.Write([]byte("media-bytes"))
		return service.Outcome{Capability: "ytclient"}, err
	}}
	h := newTestHandler(orch, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ&quality=720&audio=true", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "media-bytes", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, service.ServeInput{RawURL: "dQw4w9WgXcQ", Quality: 720, AudioOnly: true}, got)
}

func TestHandler_Download_Exhausted(t *testing.T) {
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		return service.Outcome{}, errors.Join(errpkg.ErrAllCapabilitiesExhausted, errors.New("ytclient: boom"))
	}}
	h := newTestHandler(orch, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w.Body)
	assert.Equal(t, "All methods failed to stream.", body["error"])
	assert.Contains(t, body["hint"], "yt-dlp")
}

func TestHandler_Download_PartialStreamAborts(t *testing.T) {
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		_, _ = sink.Write([]byte("half"))
		return service.Outcome{Capability: "ytclient"}, fmt.Errorf("ytclient: %w", errpkg.ErrPartialStream)
	}}
	h := newTestHandler(orch, newMockTaskService(), &mockFiles{})
	w := httptest.NewRecorder()

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ", nil))
	})
	assert.Equal(t, "half", w.Body.String())
}

func TestHandler_Download_DetachedTaskDelivered(t *testing.T) {
	tasks := newMockTaskService()
	tasks.tasks["task-1"] = domain.Task{
		ID:         "task-1",
		Status:     domain.TaskStatusFinished,
		Filename:   "clip.mp4",
		OutputPath: "/storage/clip.mp4",
	}
	files := &mockFiles{}
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		return service.Outcome{Capability: "ytdlp-task", TaskID: "task-1"}, nil
	}}
	h := newTestHandler(orch, tasks, files)
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "task-1", w.Header().Get("X-Task-Id"))
	assert.Equal(t, "file:/storage/clip.mp4", w.Body.String())
	assert.Equal(t, []string{"/storage/clip.mp4"}, files.served)
}

func TestHandler_Download_DetachedTaskFailed(t *testing.T) {
	tasks := newMockTaskService()
	tasks.tasks["task-1"] = domain.Task{ID: "task-1", Status: domain.TaskStatusFailed, Message: "yt-dlp exit code 1"}
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		return service.Outcome{Capability: "ytdlp-task", TaskID: "task-1"}, nil
	}}
	h := newTestHandler(orch, tasks, &mockFiles{})
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w.Body)
	assert.Equal(t, "task-1", body["taskId"])
	assert.Equal(t, "yt-dlp exit code 1", body["message"])
}

func TestHandler_Download_DetachedClientGone(t *testing.T) {
	tasks := newMockTaskService()
	tasks.waitErr = context.Canceled
	files := &mockFiles{}
	orch := &mockOrchestrator{serve: func(ctx context.Context, in service.ServeInput, sink capability.Sink) (service.Outcome, error) {
		return service.Outcome{Capability: "ytdlp-task", TaskID: "task-1"}, nil
	}}
	h := newTestHandler(orch, tasks, files)
	w := httptest.NewRecorder()

	h.Download(w, httptest.NewRequest(http.MethodGet, "/download?url=dQw4w9WgXcQ", nil))

	assert.Equal(t, []string{"task-1"}, tasks.discarded)
	assert.Empty(t, files.served)
}

func TestHandler_StartTask(t *testing.T) {
	tasks := newMockTaskService()
	h := newTestHandler(nil, tasks, &mockFiles{})

	body, _ := json.Marshal(domain.StartTaskRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Quality: 720})
	w := httptest.NewRecorder()
	h.StartTask(w, httptest.NewRequest(http.MethodPost, "/tasks/start", bytes.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp domain.StartTaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, tasks.started)
}

func TestHandler_StartTask_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{`, "invalid request body"},
		{"missing url", `{}`, "Missing url"},
		{"invalid url", `{"url":"%%%"}`, "Invalid YouTube URL/ID"},
		{"bad quality", `{"url":"dQw4w9WgXcQ","quality":480}`, "quality must be one of 360, 720, 1080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(nil, newMockTaskService(), &mockFiles{})
			w := httptest.NewRecorder()

			h.StartTask(w, httptest.NewRequest(http.MethodPost, "/tasks/start", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decodeBody(t, w.Body)["error"])
		})
	}
}

func TestHandler_StartTask_SpawnFailure(t *testing.T) {
	tasks := newMockTaskService()
	tasks.startErr = fmt.Errorf("start task task-1: %w", errpkg.ErrSpawnFailed)
	h := newTestHandler(nil, tasks, &mockFiles{})
	w := httptest.NewRecorder()

	h.StartTask(w, httptest.NewRequest(http.MethodPost, "/tasks/start", strings.NewReader(`{"url":"dQw4w9WgXcQ"}`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w.Body)
	assert.Equal(t, "failed to start task", body["error"])
	assert.Contains(t, body["message"], "spawn")
}

func TestHandler_GetTask(t *testing.T) {
	tasks := newMockTaskService()
	percent := 12.5
	tasks.tasks["abc"] = domain.Task{ID: "abc", Status: domain.TaskStatusRunning, Percent: &percent, Speed: "1MiB/s"}
	router := NewRouter(newTestHandler(nil, tasks, &mockFiles{}), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "abc", resp.TaskID)
	assert.Equal(t, domain.TaskStatusRunning, resp.Status)
	require.NotNil(t, resp.Percent)
	assert.Equal(t, 12.5, *resp.Percent)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Unknown taskId", decodeBody(t, w.Body)["error"])
}

func TestHandler_TaskFile(t *testing.T) {
	tasks := newMockTaskService()
	tasks.tasks["done"] = domain.Task{ID: "done", Status: domain.TaskStatusFinished, Filename: "a.mp4", OutputPath: "/s/a.mp4"}
	tasks.tasks["busy"] = domain.Task{ID: "busy", Status: domain.TaskStatusRunning}
	router := NewRouter(newTestHandler(nil, tasks, &mockFiles{}), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/done/file", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "file:/s/a.mp4", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/done/file", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/busy/file", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/nope/file", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_TaskEvents(t *testing.T) {
	tasks := newMockTaskService()
	percent := 40.0
	tasks.tasks["abc"] = domain.Task{ID: "abc", Status: domain.TaskStatusRunning, Percent: &percent}
	ts := httptest.NewServer(NewRouter(newTestHandler(nil, tasks, &mockFiles{}), nil))
	defer ts.Close()

	readFirstEvent := func(id string) domain.EventMessage {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/tasks/"+id+"/events", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(line, "data: "), line)

		var msg domain.EventMessage
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
		return msg
	}

	msg := readFirstEvent("abc")
	assert.Equal(t, "progress", msg.Type)
	assert.Equal(t, domain.TaskStatusRunning, msg.Payload.Status)
	require.NotNil(t, msg.Payload.Percent)
	assert.Equal(t, 40.0, *msg.Payload.Percent)

	msg = readFirstEvent("ghost")
	assert.Equal(t, domain.TaskStatusUnknown, msg.Payload.Status)
}

func TestRateLimiter(t *testing.T) {
	h := newTestHandler(nil, newMockTaskService(), &mockFiles{})
	router := NewRouter(h, NewRateLimiter(0.001, 1, newTestLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	router := NewRouter(newTestHandler(nil, newMockTaskService(), &mockFiles{}), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/download", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
