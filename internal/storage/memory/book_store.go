package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/storage"
)

// BookStore implements book.Store over an in-memory copy of the served dataset.
type BookStore struct {
	mu    sync.RWMutex
	books map[string]book.Book
}

// NewBookStore indexes the given books by id. Later duplicates win.
func NewBookStore(books []book.Book) *BookStore {
	s := &BookStore{books: make(map[string]book.Book, len(books))}
	for _, b := range books {
		s.books[b.ID] = b
	}
	return s
}

// UpsertBook stores or replaces a book.
func (s *BookStore) UpsertBook(_ context.Context, b book.Book) error {
	if b.ID == "" {
		return fmt.Errorf("book id is required")
	}
	b.Chapters = append([]book.Chapter(nil), b.Chapters...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.ID] = b
	return nil
}

// ListBooks returns books without chapters ordered by id, optionally filtered
// by difficulty.
func (s *BookStore) ListBooks(_ context.Context, difficulty book.Difficulty) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []book.Book{}
	for _, b := range s.books {
		if difficulty != "" && b.Difficulty != difficulty {
			continue
		}
		b.Chapters = nil
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetBook returns a book with its chapters.
func (s *BookStore) GetBook(_ context.Context, id string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return book.Book{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	b.Chapters = append([]book.Chapter(nil), b.Chapters...)
	return b, nil
}

// ListChapters returns the served chapters of a book.
func (s *BookStore) ListChapters(ctx context.Context, bookID string) ([]book.ServedChapter, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]book.ServedChapter, 0, len(b.Chapters))
	for _, ch := range b.Chapters {
		out = append(out, book.Serve(b.ID, ch))
	}
	return out, nil
}

// GetChapter returns one served chapter by its 1-based number.
func (s *BookStore) GetChapter(ctx context.Context, bookID string, number int) (book.ServedChapter, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return book.ServedChapter{}, err
	}
	for _, ch := range b.Chapters {
		if ch.ID == number {
			return book.Serve(b.ID, ch), nil
		}
	}
	return book.ServedChapter{}, fmt.Errorf("chapter %d of %s: %w", number, bookID, storage.ErrNotFound)
}
