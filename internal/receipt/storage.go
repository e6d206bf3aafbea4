package receipt

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Save stores data at path and returns its public URL
	Save(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// Get retrieves a file by path
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes a file
	Delete(ctx context.Context, path string) error
}

// UploadPath builds uploads/YYYY-MM-DD/<id>[.<ext>] for an uploaded file
func UploadPath(filename string, now time.Time, id string) string {
	name := strings.Join(strings.Fields(strings.ToLower(filename)), "-")
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext != "" && ext != name {
		id = id + "." + ext
	}
	return path.Join("uploads", now.Format("2006-01-02"), id)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new LocalStorage instance.
// baseURL is the externally visible server address used to build file URLs.
func NewLocalStorage(basePath string, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// resolve maps a storage path into basePath, rejecting traversal
func (l *LocalStorage) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), nil
}

// Save writes a file to local storage
func (l *LocalStorage) Save(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	fullPath, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return l.baseURL + "/files/" + strings.TrimPrefix(path.Clean("/"+p), "/"), nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(ctx context.Context, p string) ([]byte, error) {
	fullPath, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(ctx context.Context, p string) error {
	fullPath, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
