package book

import (
	"context"
	"io"
	"time"
)

// Store persists and serves books.
type Store interface {
	UpsertBook(ctx context.Context, b Book) error
	ListBooks(ctx context.Context, difficulty Difficulty) ([]Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	ListChapters(ctx context.Context, bookID string) ([]ServedChapter, error)
	GetChapter(ctx context.Context, bookID string, number int) (ServedChapter, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for archived artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
