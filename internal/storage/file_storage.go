package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/veranemoloko/media-downloader/internal/media"
)

// FileStorage owns the two roots media files are written to: a temp root
// for files streamed once and discarded, and a storage root for files
// produced by detached tasks.
type FileStorage struct {
	tempDir    string
	storageDir string
	logger     *slog.Logger
}

// NewFileStorage creates a new FileStorage instance with the given directories.
func NewFileStorage(tempDir, storageDir string, logger *slog.Logger) *FileStorage {
	return &FileStorage{
		tempDir:    tempDir,
		storageDir: storageDir,
		logger:     logger,
	}
}

// TempPath returns a fresh path in the temp root: <dir>/<title>_<uuid>.<ext>.
func (s *FileStorage) TempPath(title, ext string) string {
	return filepath.Join(s.tempDir, uniqueName(title, ext))
}

// StoragePath returns a fresh path in the storage root.
func (s *FileStorage) StoragePath(title, ext string) string {
	return filepath.Join(s.storageDir, uniqueName(title, ext))
}

func uniqueName(title, ext string) string {
	return fmt.Sprintf("%s_%s.%s", media.SafeFileName(title), uuid.NewString(), ext)
}

// FileExists checks whether a file exists at path.
func (s *FileStorage) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFileSize returns the size of the file in bytes. A missing file yields
// an error wrapping fs.ErrNotExist.
func (s *FileStorage) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// Remove deletes path. A file that is already gone is not an error.
func (s *FileStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to delete file", "path", path, "error", err)
		return err
	}
	return nil
}

// RemovePartial deletes path along with the in-progress files yt-dlp leaves
// next to it.
func (s *FileStorage) RemovePartial(path string) {
	for _, p := range []string{path, path + ".part", path + ".ytdl"} {
		_ = s.Remove(p)
	}
}

// NewLease returns a Lease that deletes path exactly once.
func (s *FileStorage) NewLease(path string) *Lease {
	return &Lease{path: path, storage: s}
}

// ServeAndRemove streams the file at path to w as an attachment and deletes
// it afterwards, whether the copy completed, the client went away or the
// file could not be opened. It returns the number of bytes copied.
func (s *FileStorage) ServeAndRemove(w http.ResponseWriter, path, downloadName, contentType string) (int64, error) {
	lease := s.NewLease(path)
	defer lease.Release()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if contentType == "" {
		contentType = media.ContentTypeFor(filepath.Ext(path))
	}

	h := w.Header()
	h.Set("Content-Disposition", media.ContentDisposition(downloadName))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", path, err)
	}
	return n, nil
}
