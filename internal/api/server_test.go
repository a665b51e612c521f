package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/storage/memory"
)

func TestServer_ListBooks_ReturnsServedChapters(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books")

	require.Equal(t, http.StatusOK, rec.Code)
	var books []BookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 2)
	require.Equal(t, "aesop-21", books[0].ID)
	require.Len(t, books[0].Chapters, 2)
	require.Equal(t, "aesop-21-ch1", books[0].Chapters[0].ID)
	require.Equal(t, 1, books[0].Chapters[0].ChapterNumber)
	require.Equal(t, 4, books[0].Chapters[0].WordCount)
}

func TestServer_ListBooks_FiltersByDifficulty(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books?difficulty=medium")

	require.Equal(t, http.StatusOK, rec.Code)
	var books []BookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)
	require.Equal(t, "franklin-148", books[0].ID)
}

func TestServer_ListBooks_RejectsUnknownDifficulty(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books?difficulty=expert")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListBooks_EmptyStore(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewBookStore(nil), nil, fakeIDGen{}, Config{}, zap.NewNop())
	rec := serve(t, server, "/v1/books")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_GetBook(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books/franklin-148")

	require.Equal(t, http.StatusOK, rec.Code)
	var got BookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "The Autobiography of Benjamin Franklin", got.Title)
	require.Equal(t, "franklin", got.HeroID)
	require.Equal(t, "#4A4A4A", got.CoverColor)
	require.Len(t, got.Chapters, 1)
}

func TestServer_GetBook_NotFound(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books/unknown-1")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not found")
}

func TestServer_ListChapters(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/v1/books/aesop-21/chapters")

	require.Equal(t, http.StatusOK, rec.Code)
	var chapters []book.ServedChapter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chapters))
	require.Len(t, chapters, 2)
	require.Equal(t, "The Crow and the Pitcher", chapters[1].Title)

	rec = serve(t, newTestServer(), "/v1/books/unknown-1/chapters")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetChapter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"found", "/v1/books/aesop-21/chapters/2", http.StatusOK},
		{"missing chapter", "/v1/books/aesop-21/chapters/9", http.StatusNotFound},
		{"missing book", "/v1/books/unknown-1/chapters/1", http.StatusNotFound},
		{"malformed", "/v1/books/aesop-21/chapters/two", http.StatusBadRequest},
		{"zero", "/v1/books/aesop-21/chapters/0", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, newTestServer(), tc.path)
			require.Equal(t, tc.status, rec.Code)
		})
	}

	rec := serve(t, newTestServer(), "/v1/books/aesop-21/chapters/2")
	var ch book.ServedChapter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ch))
	require.Equal(t, "aesop-21-ch2", ch.ID)
	require.Equal(t, 2, ch.ChapterNumber)
}

func TestServer_StoreFailureIsInternalError(t *testing.T) {
	t.Parallel()

	server := NewServer(brokenStore{}, nil, fakeIDGen{}, Config{}, zap.NewNop())
	rec := serve(t, server, "/v1/books/aesop-21")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	server := NewServer(memory.NewBookStore(nil), fakePinger{err: errors.New("down")}, fakeIDGen{}, Config{}, zap.NewNop())
	rec = serve(t, server, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	serve(t, server, "/v1/books")
	rec := serve(t, server, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(), "/healthz")
	require.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer() *Server {
	store := memory.NewBookStore([]book.Book{
		{
			ID:         "aesop-21",
			Title:      "Aesop's Fables",
			Author:     "Aesop",
			Difficulty: book.DifficultyEasy,
			Genre:      "Fable",
			Year:       1900,
			CoverColor: "#FFD700",
			HeroID:     "aesop",
			Chapters: []book.Chapter{
				{ID: 1, Title: "The Fox and the Grapes", Content: "A hungry fox saw"},
				{ID: 2, Title: "The Crow and the Pitcher", Content: "A thirsty crow found a pitcher"},
			},
		},
		{
			ID:         "franklin-148",
			Title:      "The Autobiography of Benjamin Franklin",
			Author:     "Franklin, Benjamin",
			Difficulty: book.DifficultyMedium,
			Genre:      "Biography",
			Year:       1790,
			CoverColor: "#4A4A4A",
			HeroID:     "franklin",
			Chapters:   []book.Chapter{{ID: 1, Title: "Full Text", Content: "Dear son"}},
		},
	})
	return NewServer(store, nil, fakeIDGen{id: "req-1"}, Config{}, zap.NewNop())
}

type fakeIDGen struct {
	id string
}

func (f fakeIDGen) MustNewID() string {
	if f.id == "" {
		return "req"
	}
	return f.id
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type brokenStore struct {
	book.Store
}

func (brokenStore) GetBook(context.Context, string) (book.Book, error) {
	return book.Book{}, errors.New("connection reset")
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
