package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DefaultVideoMIME is assumed when neither the client nor the extension names a type.
const DefaultVideoMIME = "video/mp4"

var ErrNotFound = errors.New("storage: object not found")

// FileStore keeps dropped or selected source videos on the local filesystem
// until they are uploaded.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if !filepath.IsAbs(basePath) {
		if abs, err := filepath.Abs(basePath); err == nil {
			basePath = abs
		}
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save streams r to key and returns the canonical key with the number of bytes written.
// A partially written file is removed when the copy fails.
func (s *FileStore) Save(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	if s == nil {
		return "", 0, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	cleanKey, fullPath, err := s.prepare(key)
	if err != nil {
		return "", 0, err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: create file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(fullPath)
		return "", 0, fmt.Errorf("storage: write file: %w", errors.Join(copyErr, closeErr))
	}
	return cleanKey, n, nil
}

// Open returns a reader for key along with its size. The caller closes the reader.
func (s *FileStore) Open(key string) (io.ReadCloser, int64, error) {
	if s == nil {
		return nil, 0, errors.New("storage: no store configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("storage: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("storage: stat file: %w", err)
	}
	return f, info.Size(), nil
}

// Remove deletes key; a missing object is not an error.
func (s *FileStore) Remove(key string) error {
	if s == nil {
		return nil
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

func (s *FileStore) prepare(key string) (string, string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	return cleanKey, fullPath, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

// SourceKey builds the storage key for a job's source file, keeping only the
// base name of whatever the client sent.
func SourceKey(jobID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source.bin"
	}
	return fmt.Sprintf("sources/%s/%s", jobID, name)
}

// DetectMIME picks the declared type when it is a video type, else guesses
// from the extension, else falls back to DefaultVideoMIME.
func DetectMIME(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if strings.HasPrefix(declared, "video/") {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); strings.HasPrefix(byExt, "video/") {
		return byExt
	}
	return DefaultVideoMIME
}
