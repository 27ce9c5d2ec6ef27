package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/media-downloader/internal/domain"
	"github.com/veranemoloko/media-downloader/internal/metrics"
)

const eventTypeProgress = "progress"

// TaskEvents handles GET /tasks/{id}/events. The first frame is the current
// snapshot; the stream stays open until the client disconnects.
func (h *Handler) TaskEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "id")
	sub := h.tasks.Subscribe(id)
	defer sub.Close()

	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("event stream opened", "task_id", id)
	defer h.logger.Debug("event stream closed", "task_id", id)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C():
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event write failed", "task_id", id, "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.ProgressEvent) error {
	data, err := json.Marshal(domain.EventMessage{Type: eventTypeProgress, Payload: ev})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
