package capability

import (
	"context"
	"sync"

	"github.com/kkdai/youtube/v2"
)

type videoCacheKey struct{}

type videoCache struct {
	mu     sync.Mutex
	videos map[string]*youtube.Video
}

// WithVideoCache returns a context under which CachingClient fetches each
// video's metadata at most once.
func WithVideoCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, videoCacheKey{}, &videoCache{videos: make(map[string]*youtube.Video)})
}

// CachingClient reuses video metadata within one request. Outside a
// WithVideoCache context it passes every call through.
type CachingClient struct {
	VideoClient
}

// NewCachingClient wraps client.
func NewCachingClient(client VideoClient) *CachingClient {
	return &CachingClient{VideoClient: client}
}

// GetVideoContext returns the cached video for url or fetches it. Failed
// lookups are not cached.
func (c *CachingClient) GetVideoContext(ctx context.Context, url string) (*youtube.Video, error) {
	cache, ok := ctx.Value(videoCacheKey{}).(*videoCache)
	if !ok {
		return c.VideoClient.GetVideoContext(ctx, url)
	}

	cache.mu.Lock()
	video, hit := cache.videos[url]
	cache.mu.Unlock()
	if hit {
		return video, nil
	}

	video, err := c.VideoClient.GetVideoContext(ctx, url)
	if err != nil {
		return nil, err
	}

	cache.mu.Lock()
	cache.videos[url] = video
	cache.mu.Unlock()
	return video, nil
}
