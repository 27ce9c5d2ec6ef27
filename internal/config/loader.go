package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
)

// Load reads an optional .env file, then environment variables, validates the
// result and ensures the temp and storage roots exist.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, errpkg.ErrConfigNotFound) {
		return nil, err
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := createDirs(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, errpkg.ErrConfigNotFound)
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func createDirs(cfg *Config) error {
	dirs := []string{
		cfg.TempDir,
		cfg.StorageDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("directory ready", "path", dir)
	}
	return nil
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the process logger from LogFormat ("json" or "text") and
// LogLevel, installs it as the slog default and returns it.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("env", cfg.Environment)
	slog.SetDefault(logger)
	return logger
}
