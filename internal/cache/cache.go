package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veranemoloko/media-downloader/internal/domain"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
)

const keyPrefix = "task:snapshot:"

// TaskMirror stores task snapshots in Redis so they stay readable after the
// in-memory registry evicted them or from another instance.
type TaskMirror struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewTaskMirror wraps an existing Redis client.
func NewTaskMirror(client redis.Cmdable, ttl time.Duration) *TaskMirror {
	return &TaskMirror{client: client, ttl: ttl}
}

// Connect dials addr and verifies the connection with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Save writes the snapshot of task with the mirror TTL.
func (m *TaskMirror) Save(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return m.client.Set(ctx, keyPrefix+task.ID, data, m.ttl).Err()
}

// Load returns the mirrored snapshot or ErrTaskNotFound.
func (m *TaskMirror) Load(ctx context.Context, id string) (domain.Task, error) {
	data, err := m.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Task{}, errpkg.ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, nil
}
