package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/kkdai/youtube/v2"

	"github.com/veranemoloko/media-downloader/internal/media"
	"github.com/veranemoloko/media-downloader/internal/metrics"
)

// VideoClient is the part of *youtube.Client the in-process capabilities use.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

var _ VideoClient = (*youtube.Client)(nil)

var errNoFormat = errors.New("no suitable format")

// PickFormat chooses the best format with both audio and video, capped at
// quality when it is supported. Audio-only requests without a quality cap
// get the best audio track instead.
func PickFormat(formats youtube.FormatList, quality int, audioOnly bool) (*youtube.Format, error) {
	var list youtube.FormatList
	if audioOnly && !media.IsSupportedQuality(quality) {
		list = formats.Type("audio/")
	} else {
		list = formats.WithAudioChannels().Type("video/")
		if media.IsSupportedQuality(quality) {
			capped := list.Select(func(f youtube.Format) bool {
				return f.Height > 0 && f.Height <= quality
			})
			if len(capped) > 0 {
				list = capped
			}
		}
	}

	if len(list) == 0 {
		return nil, errNoFormat
	}
	list.Sort()
	f := list[0]
	return &f, nil
}

// YtClient streams a progressive format through the in-process YouTube
// client. Cancelling ctx stops the upstream transfer.
type YtClient struct {
	client VideoClient
	logger *slog.Logger
}

// NewYtClient creates the ytclient capability.
func NewYtClient(client VideoClient, logger *slog.Logger) *YtClient {
	return &YtClient{client: client, logger: logger}
}

func (c *YtClient) Name() string { return "ytclient" }

func (c *YtClient) Kind() Kind { return KindDirectStream }

func (c *YtClient) Invoke(ctx context.Context, req Request, sink Sink) (Result, error) {
	video, err := c.client.GetVideoContext(ctx, req.Ref)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("get video: %w", err))
	}

	format, err := PickFormat(video.Formats, req.Quality, req.AudioOnly)
	if err != nil {
		return Result{}, failure(sink, err)
	}

	stream, size, err := c.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("open stream: %w", err))
	}
	defer stream.Close()

	ext := media.ExtensionFor(format.MimeType)
	h := sink.Header()
	h.Set("Content-Disposition", media.ContentDisposition(media.AttachmentName(req.Title, ext)))
	h.Set("Content-Type", media.BaseType(format.MimeType))
	if size > 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	c.logger.Debug("streaming format", "capability", c.Name(), "itag", format.ItagNo, "quality", format.QualityLabel)

	n, err := io.Copy(sink, stream)
	metrics.ServedBytes.Add(float64(n))
	if err != nil {
		return Result{}, failure(sink, fmt.Errorf("copy stream: %w", err))
	}
	if !sink.Committed() {
		return Result{}, failure(sink, errors.New("empty stream"))
	}
	return Result{}, nil
}

// ResolveTitle fetches the video title.
func (c *YtClient) ResolveTitle(ctx context.Context, ref string) (string, error) {
	video, err := c.client.GetVideoContext(ctx, ref)
	if err != nil {
		return "", err
	}
	return video.Title, nil
}
