package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Storage defines the interface for staged payload storage
type Storage interface {
	// Save stores data under key and returns the handle to retrieve it
	Save(key string, data []byte) (string, error)

	// Get retrieves a payload by handle
	Get(handle string) ([]byte, error)

	// Delete removes a payload
	Delete(handle string) error
}

// LocalStorage implements Storage on a spool directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes a payload into the spool directory
func (l *LocalStorage) Save(key string, data []byte) (string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	return key, nil
}

// Get reads a payload from the spool directory
func (l *LocalStorage) Get(handle string) ([]byte, error) {
	path, err := l.resolve(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}

// Delete removes a payload from the spool directory
func (l *LocalStorage) Delete(handle string) error {
	path, err := l.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting payload: %w", err)
	}
	return nil
}

// resolve keeps handles inside the spool directory
func (l *LocalStorage) resolve(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) || handle == "." || handle == ".." {
		return "", fmt.Errorf("invalid payload handle %q", handle)
	}
	return filepath.Join(l.basePath, handle), nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	// Truncate to reasonable length (50 chars for base, plus extension)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" || base == "." {
		base = "document"
	}
	if ext == "." || unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return base + ext
}
