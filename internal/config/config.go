package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"MD_ENV" default:"development"`

	HTTPPort     int           `envconfig:"MD_HTTP_PORT" default:"3000"`
	ReadTimeout  time.Duration `envconfig:"MD_HTTP_READ_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"MD_HTTP_IDLE_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `envconfig:"MD_HTTP_WRITE_TIMEOUT" default:"0s"`

	TempDir    string `envconfig:"MD_TEMP_DIR" default:"./tmp"`
	StorageDir string `envconfig:"MD_STORAGE_DIR" default:"./storage"`

	YtDlpPath       string        `envconfig:"MD_YTDLP_PATH" default:"yt-dlp"`
	MetadataTimeout time.Duration `envconfig:"MD_METADATA_TIMEOUT" default:"10s"`

	RateLimitRPS   float64 `envconfig:"MD_RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"MD_RATE_LIMIT_BURST" default:"10"`

	TaskRetention time.Duration `envconfig:"MD_TASK_RETENTION" default:"1h"`
	SweepInterval time.Duration `envconfig:"MD_SWEEP_INTERVAL" default:"5m"`

	SSEHeartbeat time.Duration `envconfig:"MD_SSE_HEARTBEAT" default:"15s"`

	// RedisAddr enables the task snapshot mirror when set.
	RedisAddr string        `envconfig:"MD_REDIS_ADDR" default:""`
	RedisTTL  time.Duration `envconfig:"MD_REDIS_TTL" default:"1h"`

	ShutdownTimeout time.Duration `envconfig:"MD_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"MD_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"MD_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.TempDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}
	if c.YtDlpPath == "" {
		return fmt.Errorf("yt-dlp path cannot be empty")
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit must be positive: %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive: %d", c.RateLimitBurst)
	}

	if c.TaskRetention <= 0 {
		return fmt.Errorf("task retention must be positive: %s", c.TaskRetention)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive: %s", c.SweepInterval)
	}
	if c.SSEHeartbeat <= 0 {
		return fmt.Errorf("sse heartbeat must be positive: %s", c.SSEHeartbeat)
	}

	return nil
}
