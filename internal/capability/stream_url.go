package capability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/veranemoloko/media-downloader/internal/media"
	"github.com/veranemoloko/media-downloader/internal/metrics"
)

// StreamURL resolves a direct media URL through the in-process client and
// proxies a single GET of it, passing the upstream content type and length on.
type StreamURL struct {
	client     VideoClient
	httpClient *http.Client
	logger     *slog.Logger
}

// NewStreamURL creates the streamurl capability.
func NewStreamURL(client VideoClient, httpClient *http.Client, logger *slog.Logger) *StreamURL {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StreamURL{client: client, httpClient: httpClient, logger: logger}
}

func (c *StreamURL) Name() string { return "streamurl" }

func (c *StreamURL) Kind() Kind { return KindDirectStream }

func (c *StreamURL) Invoke(ctx context.Context, req Request, sink Sink) (Result, error) {
	video, err := c.client.GetVideoContext(ctx, req.Ref)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("get video: %w", err))
	}

	format, err := PickFormat(video.Formats, req.Quality, req.AudioOnly)
	if err != nil {
		return Result{}, failure(sink, err)
	}

	streamURL, err := c.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("resolve stream url: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("request stream: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, failure(sink, fmt.Errorf("bad status: %s", resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = format.MimeType
	}
	ext := media.ExtensionFor(contentType)

	h := sink.Header()
	h.Set("Content-Disposition", media.ContentDisposition(media.AttachmentName(req.Title, ext)))
	h.Set("Content-Type", media.BaseType(contentType))
	if resp.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	sink.WriteHeader(http.StatusOK)

	n, err := io.Copy(sink, resp.Body)
	metrics.ServedBytes.Add(float64(n))
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("copy stream: %w", err))
	}
	return Result{}, nil
}
