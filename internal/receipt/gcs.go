package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStorage implements the Storage interface using a Google Cloud Storage bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage creates a GCSStorage using application default credentials
func NewGCSStorage(ctx context.Context, bucket string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

// Save uploads an object and returns its public URL
func (g *GCSStorage) Save(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing object writer: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, path), nil
}

// Get downloads an object
func (g *GCSStorage) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Delete removes an object
func (g *GCSStorage) Delete(ctx context.Context, path string) error {
	if err := g.client.Bucket(g.bucket).Object(path).Delete(ctx); err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Close closes the storage client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
