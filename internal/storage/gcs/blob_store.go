// Package gcs stores collection artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const defaultContentType = "application/octet-stream"

// Config selects the bucket and the object layout.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// Metadata is attached to every object written.
	Metadata map[string]string
}

// BlobStore implements book.BlobStore over one bucket.
type BlobStore struct {
	bucket   *storage.BucketHandle
	name     string
	prefix   string
	metadata map[string]string
}

// New validates cfg and binds the store to its bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	switch {
	case client == nil:
		return nil, errors.New("storage client is required")
	case cfg.Bucket == "":
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket:   client.Bucket(cfg.Bucket),
		name:     cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		metadata: maps.Clone(cfg.Metadata),
	}, nil
}

// PutObject uploads data as objectPath and returns its gs:// URI. A failed
// read aborts the upload so no partial object is committed.
func (s *BlobStore) PutObject(ctx context.Context, objectPath string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", errors.New("path is required")
	}
	name := s.objectName(objectPath)
	if contentType == "" {
		contentType = defaultContentType
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.bucket.Object(name).NewWriter(uploadCtx)
	w.ContentType = contentType
	w.Metadata = s.metadata

	if _, err := io.Copy(w, data); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.name, name), nil
}

func (s *BlobStore) objectName(p string) string {
	p = strings.TrimLeft(p, "/")
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}
